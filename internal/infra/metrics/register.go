package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called from init() in each metrics file.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// Register adds every collector to reg. Use it for isolated registries.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all collectors with the default registry exactly once.
func MustRegister() {
	once.Do(func() {
		if err := Register(prometheus.DefaultRegisterer); err != nil {
			panic(err)
		}
	})
}
