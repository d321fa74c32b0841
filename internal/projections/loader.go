package projections

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jstittsworth/auction-copilot/internal/models"
)

// ErrMissingData indicates a required file or column is absent. Fatal at startup.
var ErrMissingData = errors.New("missing projection data")

// ErrSchemaMismatch indicates a numeric column holds non-numeric content. Fatal at startup.
var ErrSchemaMismatch = errors.New("projection schema mismatch")

// column describes one expected CSV column with accepted header aliases.
// Text columns are carried verbatim instead of parsed as numbers.
type column struct {
	key      string
	aliases  []string
	required bool
	text     bool
}

var hitterColumns = []column{
	{key: "NAME", aliases: []string{"NAME", "PLAYER"}, required: true},
	{key: "POS", aliases: []string{"POS", "POSITION"}, text: true},
	{key: models.StatPlateAppearances, aliases: []string{"PA"}, required: true},
	{key: models.StatRuns, aliases: []string{"R"}, required: true},
	{key: models.StatHomeRuns, aliases: []string{"HR"}, required: true},
	{key: models.StatRBI, aliases: []string{"RBI"}, required: true},
	{key: models.StatStolenBases, aliases: []string{"SB"}, required: true},
	{key: models.StatWalks, aliases: []string{"BB"}, required: true},
	{key: models.StatAverage, aliases: []string{"AVG", "BA"}, required: true},
}

var pitcherColumns = []column{
	{key: "NAME", aliases: []string{"NAME", "PLAYER"}, required: true},
	{key: models.StatInningsPitched, aliases: []string{"IP"}, required: true},
	{key: models.StatWins, aliases: []string{"W"}, required: true},
	{key: models.StatStrikeouts, aliases: []string{"K", "SO"}, required: true},
	{key: models.StatERA, aliases: []string{"ERA"}, required: true},
	{key: models.StatWHIP, aliases: []string{"WHIP"}, required: true},
	{key: models.StatSaves, aliases: []string{"SV"}},
	{key: models.StatHolds, aliases: []string{"HLD", "HOLDS"}},
	{key: models.StatGames, aliases: []string{"G"}},
	{key: models.StatGamesStarted, aliases: []string{"GS"}},
}

var adpColumns = []column{
	{key: "NAME", aliases: []string{"NAME", "PLAYER"}, required: true},
	{key: "ADP", aliases: []string{"ADP"}, required: true},
}

var holdsColumns = []column{
	{key: "NAME", aliases: []string{"NAME", "PLAYER"}, required: true},
	{key: models.StatHolds, aliases: []string{"HLD", "HOLDS"}, required: true},
}

// Files names the tabular inputs. Holds is optional; the others are required.
type Files struct {
	Hitters          string
	StartingPitchers string
	ReliefPitchers   string
	ADP              string
	Holds            string
}

// Loader reads projection tables and emits typed player records.
type Loader struct {
	defaultHoldRate float64
	log             *logrus.Entry
}

func NewLoader(defaultHoldRate float64, log *logrus.Logger) *Loader {
	return &Loader{
		defaultHoldRate: defaultHoldRate,
		log:             log.WithField("component", "projections"),
	}
}

// Load reads all projection inputs and returns the full player pool with
// sequential IDs. Hitters load first, then starters, then relievers.
func (l *Loader) Load(files Files) ([]*models.Player, error) {
	players := make([]*models.Player, 0, 600)
	nextID := 1

	hitters, err := l.loadTable(files.Hitters, hitterColumns)
	if err != nil {
		return nil, fmt.Errorf("hitters: %w", err)
	}
	for _, row := range hitters {
		// DH only when the file carries no usable position.
		tag := models.PositionDH
		if pos := row.text["POS"]; pos != "" {
			if parsed, ok := models.ParsePositionTag(pos); ok {
				tag = parsed
			} else {
				l.log.WithFields(logrus.Fields{"player": row.name, "position": pos}).Warn("Unrecognized position, treating as DH")
			}
		}
		players = append(players, &models.Player{
			ID:       nextID,
			Name:     row.name,
			Position: tag,
			Stats:    row.stats,
		})
		nextID++
	}

	for _, in := range []struct {
		path string
		tag  models.PositionTag
	}{
		{files.StartingPitchers, models.PositionStarter},
		{files.ReliefPitchers, models.PositionReliever},
	} {
		rows, err := l.loadTable(in.path, pitcherColumns)
		if err != nil {
			return nil, fmt.Errorf("%s pitchers: %w", in.tag, err)
		}
		for _, row := range rows {
			players = append(players, &models.Player{
				ID:       nextID,
				Name:     row.name,
				Position: in.tag,
				Stats:    row.stats,
			})
			nextID++
		}
	}

	if err := l.applyADP(files.ADP, players); err != nil {
		return nil, err
	}
	if err := l.applyHolds(files.Holds, players); err != nil {
		return nil, err
	}

	l.log.WithField("players", len(players)).Info("Projections loaded")
	return players, nil
}

type tableRow struct {
	name  string
	stats map[string]float64
	text  map[string]string
}

func (l *Loader) loadTable(path string, columns []column) ([]tableRow, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: file not configured", ErrMissingData)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingData, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMissingData, path)
	}

	index, err := mapHeader(records[0], columns, path)
	if err != nil {
		return nil, err
	}

	textKeys := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.text {
			textKeys[col.key] = true
		}
	}

	rows := make([]tableRow, 0, len(records)-1)
	seen := make(map[string]bool, len(records)-1)
	for i, record := range records[1:] {
		name := models.NormalizeName(record[index["NAME"]])
		if name == "" {
			continue
		}
		if seen[name] {
			l.log.WithFields(logrus.Fields{"file": path, "player": name}).Warn("Duplicate player in projection file")
		}
		seen[name] = true

		stats := make(map[string]float64, len(index))
		text := make(map[string]string)
		for key, col := range index {
			if key == "NAME" {
				continue
			}
			raw := strings.TrimSpace(record[col])
			if raw == "" {
				continue
			}
			if textKeys[key] {
				text[key] = raw
				continue
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s row %d column %s: %q", ErrSchemaMismatch, path, i+2, key, raw)
			}
			stats[key] = val
		}
		rows = append(rows, tableRow{name: name, stats: stats, text: text})
	}
	return rows, nil
}

func mapHeader(header []string, columns []column, path string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	index := make(map[string]int, len(columns))
	for _, col := range columns {
		found := false
		for _, alias := range col.aliases {
			if i, ok := byName[alias]; ok {
				index[col.key] = i
				found = true
				break
			}
		}
		if !found && col.required {
			return nil, fmt.Errorf("%w: %s has no %s column", ErrMissingData, path, col.key)
		}
	}
	return index, nil
}

func (l *Loader) applyADP(path string, players []*models.Player) error {
	rows, err := l.loadTable(path, adpColumns)
	if err != nil {
		return fmt.Errorf("adp: %w", err)
	}
	adp := make(map[string]float64, len(rows))
	for _, row := range rows {
		adp[row.name] = row.stats["ADP"]
	}
	for _, p := range players {
		if v, ok := adp[p.Name]; ok {
			p.ADP = v
		}
	}
	return nil
}

// applyHolds overrides reliever holds from the optional holds table, or
// estimates them from games, saves, and starts when neither the holds table
// nor the relief file supplies a holds value for the player.
func (l *Loader) applyHolds(path string, players []*models.Player) error {
	var override map[string]float64
	if path != "" {
		rows, err := l.loadTable(path, holdsColumns)
		if err != nil {
			return fmt.Errorf("holds: %w", err)
		}
		override = make(map[string]float64, len(rows))
		for _, row := range rows {
			override[row.name] = row.stats[models.StatHolds]
		}
	}

	for _, p := range players {
		if p.Position != models.PositionReliever {
			continue
		}
		if override != nil {
			if v, ok := override[p.Name]; ok {
				p.Stats[models.StatHolds] = v
				continue
			}
		}
		if _, ok := p.Stats[models.StatHolds]; ok {
			continue
		}
		est := (p.Stats[models.StatGames] - p.Stats[models.StatSaves] - p.Stats[models.StatGamesStarted]) * l.defaultHoldRate
		if est < 0 {
			est = 0
		}
		p.Stats[models.StatHolds] = est
	}
	return nil
}
