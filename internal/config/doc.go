// Package config holds marginalia's settings: the vision provider and
// extraction strategy, reconciliation tuning, report format, and where
// processed documents are stored. Settings come from defaults, the
// optional .marginalia YAML file and CLI flags, in that order.
package config
