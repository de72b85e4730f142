package route

import (
	"context"
	"database/sql"
	"encoding/hex"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/blake2b"
	yaml "gopkg.in/yaml.v2"
)

// geometryFile is the on-disk shape of the corridor/risk-zone artifact.
type geometryFile struct {
	Corridors []namedRoute   `yaml:"corridors"`
	RiskZones []namedPolygon `yaml:"risk_zones"`
}

type namedRoute struct {
	Name      string     `yaml:"name"`
	Waypoints []latLonPt `yaml:"waypoints"`
}

type namedPolygon struct {
	Name   string     `yaml:"name"`
	Points []latLonPt `yaml:"points"`
}

type latLonPt struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// geometry is the loaded, ready-to-query corridor/risk-zone set.
type geometry struct {
	corridors []polygon
	riskZones []polygon
}

func defaultGeometry() geometry {
	return geometry{}
}

// loadGeometry loads corridors/risk zones from a YAML artifact at path,
// logging a blake2b checksum of the file for integrity tracking. A
// missing or unreadable path degrades to an empty geometry set (no
// corridors, no risk zones — every point then counts as outside safe).
func loadGeometry(path string, logger *slog.Logger) geometry {
	if path == "" {
		return defaultGeometry()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("route geometry artifact unreadable, running with no corridors", "path", path, "error", err)
		return defaultGeometry()
	}

	sum := blake2b.Sum256(raw)
	logger.Info("loaded route geometry artifact", "path", path, "checksum", hex.EncodeToString(sum[:]))

	var file geometryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		logger.Warn("route geometry artifact malformed, running with no corridors", "path", path, "error", err)
		return defaultGeometry()
	}

	return fileToGeometry(file)
}

func fileToGeometry(file geometryFile) geometry {
	g := geometry{}
	for _, c := range file.Corridors {
		g.corridors = append(g.corridors, buildEnvelope(c.Name, toPoints(c.Waypoints)))
	}
	for _, z := range file.RiskZones {
		g.riskZones = append(g.riskZones, polygon{name: z.Name, points: toPoints(z.Points)})
	}
	return g
}

func toPoints(pts []latLonPt) []point {
	out := make([]point, len(pts))
	for i, p := range pts {
		out[i] = point{lat: p.Lat, lon: p.Lon}
	}
	return out
}

// loadGeometryOverride loads corridor rows from a Postgres "corridors"
// table when dbURL is set, overriding (not merging with) the YAML
// artifact's corridors; risk zones still come from the YAML file. This is
// the only place lib/pq is wired — as an alternate source for the same
// read-only geometry artifact, not a general persistence layer.
func loadGeometryOverride(ctx context.Context, dbURL string, logger *slog.Logger) ([]polygon, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name, lat, lon FROM corridors ORDER BY name, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byName := make(map[string][]point)
	var order []string
	for rows.Next() {
		var name string
		var lat, lon float64
		if err := rows.Scan(&name, &lat, &lon); err != nil {
			return nil, err
		}
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = append(byName[name], point{lat: lat, lon: lon})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]polygon, 0, len(order))
	for _, name := range order {
		out = append(out, buildEnvelope(name, byName[name]))
	}
	logger.Info("loaded corridor override from database", "corridor_count", len(out))
	return out, nil
}
