package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	Namespace = "IndexFS"

	// operation label values
	ListEntries     = "listEntries"
	ChangeDirectory = "changeDirectory"
	CreateEntry     = "createEntry"
	DeleteEntry     = "deleteEntry"

	// error label values
	ErrorNotFound      = "notFound"
	ErrorAlreadyExists = "alreadyExists"
	ErrorInvalidData   = "invalidData"
	ErrorIO            = "io"
)

var (
	Gather = prometheus.NewRegistry()

	TreeRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tree",
			Name:      "request_total",
			Help:      "Counter of directory tree operations.",
		}, []string{"type"})

	TreeErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tree",
			Name:      "request_errors",
			Help:      "Counter of directory tree operation errors.",
		}, []string{"type", "error"})

	TreeChunkAllocateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tree",
			Name:      "chunk_allocations",
			Help:      "Counter of chunk allocations, by placement (reused or appended).",
		}, []string{"placement"})

	TreeFileSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "tree",
			Name:      "file_size_bytes",
			Help:      "Size of the backing directory tree file.",
		}, []string{"file"})
)

func init() {
	Gather.MustRegister(TreeRequestCounter)
	Gather.MustRegister(TreeErrorCounter)
	Gather.MustRegister(TreeChunkAllocateCounter)
	Gather.MustRegister(TreeFileSizeGauge)
	Gather.MustRegister(collectors.NewGoCollector())
}
