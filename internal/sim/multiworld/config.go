package multiworld

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelgate.ai/internal/protocol"
)

type Config struct {
	DefaultWorldID string             `yaml:"default_world_id"`
	Worlds         []WorldSpec        `yaml:"worlds"`
	TransitRoutes  []TransitRouteSpec `yaml:"transit_routes,omitempty"`
}

type WorldSpec struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	SeedOffset int64  `yaml:"seed_offset"`
	FloorY     int    `yaml:"floor_y"`
	BoundaryR  int    `yaml:"boundary_r"`
	CoordScale int    `yaml:"coord_scale"`

	// Governed worlds block new ignitions after a first one-way arrival until stabilized.
	Governed bool `yaml:"governed"`

	Spawn SpawnSpec `yaml:"spawn"`
}

type SpawnSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// TransitRouteSpec maps a source world to its single destination world.
type TransitRouteSpec struct {
	FromWorld string `yaml:"from_world"`
	ToWorld   string `yaml:"to_world"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg = Config{}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("worlds.yaml: %w", err)
	}
	return cfg, nil
}

// Defaults is the two-world layout used when no worlds.yaml is given.
func Defaults() Config {
	cfg := defaults()
	cfg.Normalize()
	return cfg
}

func defaults() Config {
	return Config{
		DefaultWorldID: "OVERWORLD",
		Worlds: []WorldSpec{
			{
				ID:         "OVERWORLD",
				Type:       "OVERWORLD",
				FloorY:     64,
				BoundaryR:  4000,
				CoordScale: 1,
				Governed:   false,
				Spawn:      SpawnSpec{X: 0, Y: 64, Z: 0},
			},
			{
				ID:         "RIFT",
				Type:       "RIFT",
				SeedOffset: 1,
				FloorY:     32,
				BoundaryR:  500,
				CoordScale: 8,
				Governed:   true,
				Spawn:      SpawnSpec{X: 0, Y: 32, Z: 0},
			},
		},
		TransitRoutes: []TransitRouteSpec{
			{FromWorld: "OVERWORLD", ToWorld: "RIFT"},
			{FromWorld: "RIFT", ToWorld: "OVERWORLD"},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Worlds {
		c.Worlds[i].ID = strings.TrimSpace(c.Worlds[i].ID)
		if c.Worlds[i].Type == "" {
			c.Worlds[i].Type = c.Worlds[i].ID
		}
		if c.Worlds[i].CoordScale <= 0 {
			c.Worlds[i].CoordScale = 1
		}
	}
	if c.DefaultWorldID == "" && len(c.Worlds) > 0 {
		c.DefaultWorldID = c.Worlds[0].ID
	}
	if len(c.TransitRoutes) == 0 && len(c.Worlds) == 2 {
		// Two worlds and no routes: link them to each other.
		c.TransitRoutes = []TransitRouteSpec{
			{FromWorld: c.Worlds[0].ID, ToWorld: c.Worlds[1].ID},
			{FromWorld: c.Worlds[1].ID, ToWorld: c.Worlds[0].ID},
		}
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if len(c.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range c.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		if w.BoundaryR < 0 {
			return fmt.Errorf("world %s boundary_r must be >= 0", w.ID)
		}
		if w.CoordScale <= 0 {
			return fmt.Errorf("world %s coord_scale must be > 0", w.ID)
		}
	}
	if c.DefaultWorldID == "" {
		return fmt.Errorf("default_world_id must not be empty")
	}
	if !seen[c.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", c.DefaultWorldID)
	}
	from := map[string]bool{}
	for i, r := range c.TransitRoutes {
		if strings.TrimSpace(r.FromWorld) == "" || strings.TrimSpace(r.ToWorld) == "" {
			return fmt.Errorf("transit_routes[%d] missing from_world/to_world", i)
		}
		if !seen[r.FromWorld] {
			return fmt.Errorf("transit_routes[%d] from_world %q not found", i, r.FromWorld)
		}
		if !seen[r.ToWorld] {
			return fmt.Errorf("transit_routes[%d] to_world %q not found", i, r.ToWorld)
		}
		if r.FromWorld == r.ToWorld {
			return fmt.Errorf("transit_routes[%d] loops back to %s", i, r.FromWorld)
		}
		if from[r.FromWorld] {
			return fmt.Errorf("transit_routes[%d] second route out of %s (one destination per world)", i, r.FromWorld)
		}
		from[r.FromWorld] = true
	}
	return nil
}

func (c Config) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range c.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}

// Destination returns the single destination of a source world.
func (c Config) Destination(fromWorld string) (string, bool) {
	for _, r := range c.TransitRoutes {
		if r.FromWorld == fromWorld {
			return r.ToWorld, true
		}
	}
	return "", false
}

func (c Config) GovernedWorlds() []string {
	var out []string
	for _, w := range c.Worlds {
		if w.Governed {
			out = append(out, w.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Manifest lists world flags for state views, sorted by id.
func (c Config) Manifest() []protocol.WorldFlagsRef {
	out := make([]protocol.WorldFlagsRef, 0, len(c.Worlds))
	for _, w := range c.Worlds {
		out = append(out, protocol.WorldFlagsRef{WorldID: w.ID, Governed: w.Governed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}
