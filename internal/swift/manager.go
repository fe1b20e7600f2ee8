package swift

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// ContainerPair is a source container and its rename target.
type ContainerPair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RenameReport records what RenameWiki did per container.
type RenameReport struct {
	Renamed []ContainerPair `json:"renamed"`
	// Mismatched containers were copied but the object listings differed, so
	// the source was kept.
	Mismatched []ContainerPair `json:"mismatched"`
	Failed     []ContainerPair `json:"failed"`
}

// Manager applies wiki lifecycle events to a wiki's containers.
type Manager struct {
	backend Backend
	prefix  string
}

func NewManager(backend Backend, prefix string) *Manager {
	return &Manager{backend: backend, prefix: prefix}
}

func (m *Manager) Backend() Backend {
	return m.backend
}

func (m *Manager) Prefix() string {
	return m.prefix
}

// WikiContainers lists the containers that belong to dbname.
func (m *Manager) WikiContainers(ctx context.Context, dbname string) ([]string, error) {
	listed, err := m.backend.ListContainers(ctx, ContainerPrefix(m.prefix, dbname))
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", dbname, err)
	}
	out := make([]string, 0, len(listed))
	for _, c := range listed {
		if !belongsTo(c, dbname) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteWiki deletes every container of dbname and returns the deleted names.
// It keeps going after a failed delete.
func (m *Manager) DeleteWiki(ctx context.Context, dbname string) ([]string, error) {
	containers, err := m.WikiContainers(ctx, dbname)
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    []error
	)
	for _, c := range containers {
		if err := m.backend.DeleteContainer(ctx, c); err != nil {
			log.Error().Err(err).Str("wiki", dbname).Str("container", c).Msg("container delete failed")
			errs = append(errs, err)
			continue
		}
		log.Info().Str("wiki", dbname).Str("container", c).Msg("container deleted")
		deleted = append(deleted, c)
	}
	return deleted, errors.Join(errs...)
}

// RenameWiki copies each container of oldDB to its renamed counterpart and
// deletes the source only when both object listings match.
func (m *Manager) RenameWiki(ctx context.Context, oldDB, newDB string) (RenameReport, error) {
	var report RenameReport
	containers, err := m.WikiContainers(ctx, oldDB)
	if err != nil {
		return report, err
	}
	var errs []error
	for _, c := range containers {
		pair := ContainerPair{From: c, To: strings.ReplaceAll(c, oldDB, newDB)}
		logger := log.With().Str("wiki", oldDB).Str("container", pair.From).Str("to", pair.To).Logger()

		matched, err := m.renameContainer(ctx, pair)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("container rename failed")
			report.Failed = append(report.Failed, pair)
			errs = append(errs, err)
		case !matched:
			logger.Warn().Msgf("the rename of wiki %s to %s may not have been successful, source container kept", oldDB, newDB)
			report.Mismatched = append(report.Mismatched, pair)
		default:
			logger.Info().Msg("container renamed")
			report.Renamed = append(report.Renamed, pair)
		}
	}
	return report, errors.Join(errs...)
}

func (m *Manager) renameContainer(ctx context.Context, pair ContainerPair) (bool, error) {
	before, err := m.backend.ListObjects(ctx, pair.From, "")
	if err != nil {
		return false, err
	}
	if err := m.backend.CopyContainer(ctx, pair.From, pair.To); err != nil {
		return false, err
	}
	after, err := m.backend.ListObjects(ctx, pair.To, "")
	if err != nil {
		return false, err
	}
	slices.Sort(before)
	slices.Sort(after)
	if !slices.Equal(before, after) {
		return false, nil
	}
	if err := m.backend.DeleteContainer(ctx, pair.From); err != nil {
		return false, err
	}
	return true, nil
}
