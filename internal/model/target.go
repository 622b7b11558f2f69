package model

import "fmt"

// TargetKind classifies a monitored entity.
type TargetKind string

const (
	KindCable TargetKind = "cable"
	KindISP   TargetKind = "isp"
	KindCloud TargetKind = "cloud"
)

// ParseTargetKind validates a kind string from configuration.
func ParseTargetKind(s string) (TargetKind, error) {
	switch TargetKind(s) {
	case KindCable, KindISP, KindCloud:
		return TargetKind(s), nil
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

// Endpoint is a single addressable probe destination belonging to a Target.
type Endpoint struct {
	Address string `yaml:"address" json:"address"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
}

// Target is a monitored entity (submarine cable system, ISP or cloud
// provider) grouping one or more endpoints. Targets are immutable after
// configuration load.
type Target struct {
	ID          string     `yaml:"id" json:"id"`
	Kind        TargetKind `yaml:"kind" json:"kind"`
	DisplayName string     `yaml:"display_name" json:"display_name"`
	Endpoints   []Endpoint `yaml:"endpoints" json:"endpoints"`
}
