package util

import (
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/viper"
)

type Configuration interface {
	GetString(key string) string
	GetBool(key string) bool
	GetInt(key string) int
	GetStringSlice(key string) []string
	SetDefault(key string, value interface{})
}

// LoadConfiguration merges the named TOML configuration file into viper,
// searching the working directory and the usual system locations.
func LoadConfiguration(configFileName string, required bool) (loaded bool) {

	viper.SetConfigName(configFileName)
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.indexfs")
	viper.AddConfigPath("/etc/indexfs/")

	if err := viper.MergeInConfig(); err != nil {
		if strings.Contains(err.Error(), "Not Found") {
			glog.V(1).Infof("reading %s: %v", viper.ConfigFileUsed(), err)
		} else {
			glog.Fatalf("reading %s: %v", viper.ConfigFileUsed(), err)
		}
		if required {
			glog.Fatalf("failed to load %s.toml from the current directory, $HOME/.indexfs/, or /etc/indexfs/", configFileName)
		} else {
			return false
		}
	}
	glog.V(1).Infof("reading %s.toml from %s", configFileName, viper.ConfigFileUsed())

	return true
}

func GetViper() *viper.Viper {
	return viper.GetViper()
}
