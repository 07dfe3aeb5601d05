// Package metrics exposes bridge state to prometheus.
//
// Collector reads the bridge on every scrape, so gauges always reflect the
// current acceptor. Frames counts client frames as the connection handler sees
// them.
package metrics
