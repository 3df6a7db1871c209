package associator

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seismonet/pipeline/internal/domain"
)

type stationFile struct {
	Stations []stationEntry `yaml:"stations"`
}

type stationEntry struct {
	Code      string  `yaml:"code"`
	Network   string  `yaml:"network"`
	Location  string  `yaml:"location"`
	Channel   string  `yaml:"channel"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// LoadStations reads the YAML station registry at path (config.LocatorConfig
// .StationsFile), the same gopkg.in/yaml.v3 list-shaped loader pattern used
// by internal/config for alerts.rules.
func LoadStations(path string) ([]Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf stationFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	out := make([]Station, 0, len(sf.Stations))
	for _, s := range sf.Stations {
		out = append(out, Station{
			Code:      s.Code,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Channel: domain.ChannelID{
				Network:  s.Network,
				Station:  s.Code,
				Location: s.Location,
				Channel:  s.Channel,
			},
		})
	}
	return out, nil
}
