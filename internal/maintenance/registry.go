package maintenance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrScriptExists    = errors.New("script already exists")
	ErrScriptNil       = errors.New("script is nil")
	ErrInvalidMetadata = errors.New("invalid script metadata")
)

// Registry stores scripts by stable identifier.
type Registry struct {
	items map[string]Script
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Script)}
}

// DefaultRegistry returns every built-in script.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Script{
		&CheckSwiftContainers{},
		&CheckWikiDatabases{},
		&FixImageUser{},
		&RebuildVersionCache{},
		&RemovePII{},
		&ResetWikiCaches{},
		&RestoreManageWikiBackup{},
		&UserProfileDefaults{},
		&UpdatePrivateAuthURLs{},
		&WikiCreate{},
		&WikiDelete{},
		&WikiRename{},
		&WikiPrivate{},
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// ValidateMetadata checks required metadata fields and id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	name := strings.TrimSpace(meta.Name)
	desc := strings.TrimSpace(meta.Description)
	if id == "" || name == "" || desc == "" {
		return fmt.Errorf("%w: id, name, and description are required", ErrInvalidMetadata)
	}
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	if meta.Group != "" && !isValidID(meta.Group) {
		return fmt.Errorf("%w: invalid group %q", ErrInvalidMetadata, meta.Group)
	}
	return nil
}

func (r *Registry) Register(script Script) error {
	if script == nil {
		return ErrScriptNil
	}

	meta := script.Metadata()
	if err := ValidateMetadata(meta); err != nil {
		return err
	}

	if _, ok := r.items[meta.ID]; ok {
		return fmt.Errorf("%w: %s", ErrScriptExists, meta.ID)
	}
	r.items[meta.ID] = script
	return nil
}

func (r *Registry) Resolve(id string) (Script, bool) {
	script, ok := r.items[id]
	return script, ok
}

// ListMetadata returns deterministic metadata ordering by id.
func (r *Registry) ListMetadata() []Metadata {
	list := make([]Metadata, 0, len(r.items))
	for _, script := range r.items {
		list = append(list, script.Metadata())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
