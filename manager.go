package netabase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store is passed to Open for every Definition store.
	Store Options

	// Logger receives load, unload and schema drift events. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Roles are recorded in the root metadata file.
	Roles []Role

	// Now overrides the clock used for metadata timestamps.
	Now func() time.Time
}

// storeLink is the load state of one Definition: store is nil while
// Unloaded.
type storeLink struct {
	def   *Definition
	store *Store
}

func (link *storeLink) isLoaded() bool {
	return link.store != nil
}

func (link *storeLink) load(st *Store) {
	if link.store != nil {
		panic(fmt.Errorf("%s: store already loaded", link.def.name))
	}
	link.store = st
}

func (link *storeLink) unload() error {
	st := link.store
	if st == nil {
		return nil
	}
	link.store = nil
	return st.Close()
}

// Manager owns the stores of a fixed set of Definitions under one root
// directory, opening each lazily on first access and closing the ones a
// write transaction did not touch.
//
// Manager is not safe for concurrent use; callers sharing one across
// goroutines must serialize calls.
type Manager struct {
	name   string
	root   string
	id     string
	opt    ManagerOptions
	logger *slog.Logger

	defs      []*Definition
	links     map[string]*storeLink
	warm      map[string]bool
	accessed  map[string]bool
	drift     map[string]string
	createdAt time.Time
}

// NewManager prepares a manager over defs rooted at root. Nothing is loaded
// yet. An existing root metadata file contributes its id, creation time and
// warm-on-access list.
func NewManager(name, root string, defs []*Definition, opt ManagerOptions) (*Manager, error) {
	if !isValidName(name) {
		return nil, fmt.Errorf("invalid manager name %q", name)
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	mgr := &Manager{
		name:     name,
		root:     root,
		opt:      opt,
		logger:   opt.Logger.With("manager", name),
		links:    make(map[string]*storeLink),
		warm:     make(map[string]bool),
		accessed: make(map[string]bool),
		drift:    make(map[string]string),
	}
	for _, def := range defs {
		if mgr.links[def.name] != nil {
			return nil, fmt.Errorf("manager %s: definition %s listed twice", name, def.name)
		}
		mgr.defs = append(mgr.defs, def)
		mgr.links[def.name] = &storeLink{def: def}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapStorage("create root", err)
	}
	prev, err := readOptional(RootMetadataPath(root, name), ReadRootMetadata)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		mgr.id = prev.Manager.ID
		mgr.createdAt = prev.Manager.CreatedAt
		for _, dn := range prev.Definitions.WarmOnAccess {
			if mgr.links[dn] != nil {
				mgr.warm[dn] = true
			}
		}
	}
	if mgr.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate manager id: %w", err)
		}
		mgr.id = id.String()
	}
	if mgr.createdAt.IsZero() {
		mgr.createdAt = mgr.now()
	}
	if err := mgr.saveRootMetadata(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (mgr *Manager) Name() string { return mgr.name }
func (mgr *Manager) Root() string { return mgr.root }
func (mgr *Manager) ID() string   { return mgr.id }

// Definitions returns every managed Definition in registration order.
func (mgr *Manager) Definitions() []*Definition {
	return slices.Clone(mgr.defs)
}

// DefinitionNamed returns the managed Definition called name, or nil.
func (mgr *Manager) DefinitionNamed(name string) *Definition {
	if link := mgr.links[name]; link != nil {
		return link.def
	}
	return nil
}

func (mgr *Manager) now() time.Time {
	return mgr.opt.Now().UTC().Truncate(time.Second)
}

func (mgr *Manager) link(def *Definition) (*storeLink, error) {
	link := mgr.links[def.name]
	if link == nil || link.def != def {
		return nil, fmt.Errorf("%w: %s in manager %s", ErrDefinitionNotFound, def.name, mgr.name)
	}
	return link, nil
}

func (mgr *Manager) IsLoaded(def *Definition) bool {
	link := mgr.links[def.name]
	return link != nil && link.isLoaded()
}

// LoadDefinition opens def's store, creating <root>/<def>/ on first use, and
// refreshes the metadata files. Loading a loaded Definition does nothing.
func (mgr *Manager) LoadDefinition(def *Definition) error {
	link, err := mgr.link(def)
	if err != nil {
		return err
	}
	if link.isLoaded() {
		return nil
	}
	if err := os.MkdirAll(definitionDir(mgr.root, def.name), 0o755); err != nil {
		return wrapStorage("create definition dir", err)
	}
	if err := mgr.syncDefinitionMetadata(def); err != nil {
		return err
	}
	st, err := Open(StorePath(mgr.root, def.name), def, mgr.opt.Store)
	if err != nil {
		return fmt.Errorf("load %s: %w", def.name, err)
	}
	link.load(st)
	mgr.logger.Debug("definition loaded", "definition", def.name, "path", st.Path())
	return mgr.saveRootMetadata()
}

// UnloadDefinition closes def's store. Unloading an unloaded Definition does
// nothing.
func (mgr *Manager) UnloadDefinition(def *Definition) error {
	link, err := mgr.link(def)
	if err != nil {
		return err
	}
	if !link.isLoaded() {
		return nil
	}
	if err := mgr.unload(link); err != nil {
		return err
	}
	return mgr.saveRootMetadata()
}

func (mgr *Manager) unload(link *storeLink) error {
	err := link.unload()
	if err != nil {
		return fmt.Errorf("unload %s: %w", link.def.name, err)
	}
	mgr.logger.Debug("definition unloaded", "definition", link.def.name)
	return nil
}

// Store returns def's store, or ErrStoreNotLoaded.
func (mgr *Manager) Store(def *Definition) (*Store, error) {
	link, err := mgr.link(def)
	if err != nil {
		return nil, err
	}
	if !link.isLoaded() {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotLoaded, def.name)
	}
	return link.store, nil
}

// MustStore is Store for callers that know def is loaded; it panics otherwise.
func (mgr *Manager) MustStore(def *Definition) *Store {
	st, err := mgr.Store(def)
	if err != nil {
		panic(err)
	}
	return st
}

// AddWarmOnAccess pins def so UnloadUnused never closes it.
func (mgr *Manager) AddWarmOnAccess(def *Definition) {
	mgr.warm[def.name] = true
	mgr.saveRootMetadataQuietly()
}

func (mgr *Manager) RemoveWarmOnAccess(def *Definition) {
	delete(mgr.warm, def.name)
	mgr.saveRootMetadataQuietly()
}

func (mgr *Manager) IsWarm(def *Definition) bool {
	return mgr.warm[def.name]
}

// MarkAccessed records that the current transaction used def.
func (mgr *Manager) MarkAccessed(def *Definition) {
	mgr.accessed[def.name] = true
}

// ClearAccessed forgets which Definitions the last transaction used.
func (mgr *Manager) ClearAccessed() {
	clear(mgr.accessed)
}

// UnloadUnused closes every loaded Definition that is neither marked accessed
// nor pinned warm, and returns how many it closed.
func (mgr *Manager) UnloadUnused() (int, error) {
	var n int
	var errs []error
	for _, def := range mgr.defs {
		link := mgr.links[def.name]
		if !link.isLoaded() || mgr.accessed[def.name] || mgr.warm[def.name] {
			continue
		}
		if err := mgr.unload(link); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if n > 0 {
		errs = append(errs, mgr.saveRootMetadata())
	}
	return n, errors.Join(errs...)
}

// UnloadAll closes every loaded Definition and returns how many it closed.
func (mgr *Manager) UnloadAll() (int, error) {
	var n int
	var errs []error
	for _, def := range mgr.defs {
		link := mgr.links[def.name]
		if !link.isLoaded() {
			continue
		}
		if err := mgr.unload(link); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	errs = append(errs, mgr.saveRootMetadata())
	return n, errors.Join(errs...)
}

// LoadedDefinitions lists loaded Definitions in registration order.
func (mgr *Manager) LoadedDefinitions() []*Definition {
	var result []*Definition
	for _, def := range mgr.defs {
		if mgr.links[def.name].isLoaded() {
			result = append(result, def)
		}
	}
	return result
}

type ManagerStats struct {
	Total  int
	Loaded int
	Warm   int
}

func (mgr *Manager) Stats() ManagerStats {
	return ManagerStats{
		Total:  len(mgr.defs),
		Loaded: len(mgr.LoadedDefinitions()),
		Warm:   len(mgr.warm),
	}
}

// SchemaDrift returns the fingerprint previously recorded for def when it
// differs from the current one. It is known once def has been loaded.
func (mgr *Manager) SchemaDrift(def *Definition) (previous string, drifted bool) {
	previous, drifted = mgr.drift[def.name]
	return
}

// Close unloads everything.
func (mgr *Manager) Close() error {
	_, err := mgr.UnloadAll()
	return err
}

func (mgr *Manager) rootMetadata() *RootMetadata {
	md := &RootMetadata{
		Manager: ManagerSection{
			Name:      mgr.name,
			ID:        mgr.id,
			Version:   metadataVersion,
			RootPath:  mgr.root,
			CreatedAt: mgr.createdAt,
			UpdatedAt: mgr.now(),
		},
		Definitions: DefinitionsList{
			All:          []string{},
			Loaded:       []string{},
			WarmOnAccess: []string{},
		},
	}
	for _, def := range mgr.defs {
		md.Definitions.All = append(md.Definitions.All, def.name)
		if mgr.links[def.name].isLoaded() {
			md.Definitions.Loaded = append(md.Definitions.Loaded, def.name)
		}
		if mgr.warm[def.name] {
			md.Definitions.WarmOnAccess = append(md.Definitions.WarmOnAccess, def.name)
		}
	}
	for _, role := range mgr.opt.Roles {
		md.Permissions = append(md.Permissions, PermissionRole{
			Name:        role.Name,
			Level:       role.Grant.Level,
			Definitions: orEmpty(role.Grant.Definitions),
		})
	}
	return md
}

func (mgr *Manager) saveRootMetadata() error {
	err := writeTOML(RootMetadataPath(mgr.root, mgr.name), mgr.rootMetadata())
	if err != nil {
		return wrapStorage("write root metadata", err)
	}
	return nil
}

func (mgr *Manager) saveRootMetadataQuietly() {
	if err := mgr.saveRootMetadata(); err != nil {
		mgr.logger.Warn("cannot save root metadata", "err", err)
	}
}

// syncDefinitionMetadata rewrites def's metadata file, keeping its creation
// time, and records drift when the stored fingerprint differs.
func (mgr *Manager) syncDefinitionMetadata(def *Definition) error {
	path := DefinitionMetadataPath(mgr.root, def.name)
	prev, err := readOptional(path, ReadDefinitionMetadata)
	if err != nil {
		return err
	}
	var created time.Time
	if prev != nil {
		created = prev.Metadata.CreatedAt
		if old, cur := prev.Metadata.SchemaHash, def.Fingerprint(); old != cur {
			mgr.drift[def.name] = old
			mgr.logger.Warn("schema drift", "definition", def.name, "stored", old, "current", cur)
		} else {
			delete(mgr.drift, def.name)
		}
	}
	md := describeDefinition(def, created, mgr.now())
	if err := writeTOML(path, md); err != nil {
		return wrapStorage("write definition metadata", err)
	}
	return nil
}
