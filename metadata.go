package netabase

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"
)

const (
	rootMetadataSuffix = ".root.netabase.toml"
	defMetadataSuffix  = ".netabase.toml"
	storeFileName      = "store.db"
	metadataVersion    = "1"
)

// RootMetadata is the manager-level TOML file, <root>/<Manager>.root.netabase.toml.
type RootMetadata struct {
	Manager     ManagerSection   `toml:"manager"`
	Definitions DefinitionsList  `toml:"definitions"`
	Permissions []PermissionRole `toml:"permissions,omitempty"`
}

type ManagerSection struct {
	Name      string    `toml:"name"`
	ID        string    `toml:"id"`
	Version   string    `toml:"version"`
	RootPath  string    `toml:"root_path"`
	CreatedAt time.Time `toml:"created_at"`
	UpdatedAt time.Time `toml:"updated_at"`
}

type DefinitionsList struct {
	All          []string `toml:"all"`
	Loaded       []string `toml:"loaded"`
	WarmOnAccess []string `toml:"warm_on_access"`
}

type PermissionRole struct {
	Name        string   `toml:"name"`
	Level       Level    `toml:"level"`
	Definitions []string `toml:"definitions"`
}

// DefinitionMetadata is the per-Definition TOML file,
// <root>/<Def>/<Def>.netabase.toml.
type DefinitionMetadata struct {
	Definition  DefinitionSection     `toml:"definition"`
	Trees       TreesSection          `toml:"trees"`
	Permissions DefinitionPermissions `toml:"permissions"`
	Metadata    MetadataSection       `toml:"metadata"`
}

type DefinitionSection struct {
	Name         string `toml:"name"`
	Discriminant string `toml:"discriminant"`
	Version      string `toml:"version"`
}

type TreesSection struct {
	Main         []string `toml:"main"`
	Secondary    []string `toml:"secondary"`
	Relational   []string `toml:"relational"`
	Subscription []string `toml:"subscription"`
	Hash         []string `toml:"hash"`
}

type DefinitionPermissions struct {
	CanReference []string `toml:"can_reference"`
	References   []string `toml:"references"`
}

type MetadataSection struct {
	CreatedAt  time.Time `toml:"created_at"`
	UpdatedAt  time.Time `toml:"updated_at"`
	SchemaHash string    `toml:"schema_hash"`
}

// RootMetadataPath returns where the manager called manager keeps its root
// metadata file.
func RootMetadataPath(root, manager string) string {
	return filepath.Join(root, manager+rootMetadataSuffix)
}

func definitionDir(root, def string) string {
	return filepath.Join(root, def)
}

// DefinitionMetadataPath returns the metadata file of the Definition named def.
func DefinitionMetadataPath(root, def string) string {
	return filepath.Join(root, def, def+defMetadataSuffix)
}

// StorePath returns where the Definition named def keeps its data under root.
func StorePath(root, def string) string {
	return filepath.Join(root, def, storeFileName)
}

// describeDefinition builds the metadata of def as of now. created is kept
// from a previous file when non-zero.
func describeDefinition(def *Definition, created, now time.Time) *DefinitionMetadata {
	if created.IsZero() {
		created = now
	}
	md := &DefinitionMetadata{
		Definition: DefinitionSection{
			Name:         def.name,
			Discriminant: def.name,
			Version:      fmt.Sprint(def.version),
		},
		Permissions: DefinitionPermissions{
			CanReference: orEmpty(def.CanReference()),
			References:   orEmpty(def.References()),
		},
		Metadata: MetadataSection{
			CreatedAt:  created,
			UpdatedAt:  now,
			SchemaHash: def.Fingerprint(),
		},
	}
	md.Trees.Secondary = []string{}
	md.Trees.Relational = []string{}
	md.Trees.Subscription = []string{}
	for _, m := range def.models {
		md.Trees.Main = append(md.Trees.Main, m.MainTreeName())
		md.Trees.Secondary = append(md.Trees.Secondary, m.SecondaryTreeNames()...)
		md.Trees.Relational = append(md.Trees.Relational, m.RelationalTreeNames()...)
		md.Trees.Subscription = append(md.Trees.Subscription, m.SubscriptionTreeNames()...)
		md.Trees.Hash = append(md.Trees.Hash, m.HashTreeName())
	}
	md.Trees.Main = orEmpty(md.Trees.Main)
	md.Trees.Hash = orEmpty(md.Trees.Hash)
	return md
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ReadRootMetadata loads a root metadata file.
func ReadRootMetadata(path string) (*RootMetadata, error) {
	md := new(RootMetadata)
	if err := readTOML(path, md); err != nil {
		return nil, err
	}
	return md, nil
}

// ReadDefinitionMetadata loads a per-Definition metadata file.
func ReadDefinitionMetadata(path string) (*DefinitionMetadata, error) {
	md := new(DefinitionMetadata)
	if err := readTOML(path, md); err != nil {
		return nil, err
	}
	return md, nil
}

// FindRootMetadata returns the root metadata files directly inside root.
func FindRootMetadata(root string) ([]string, error) {
	return filepath.Glob(filepath.Join(root, "*"+rootMetadataSuffix))
}

func readTOML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func writeTOML(path string, v any) error {
	data, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func readOptional[T any](path string, read func(string) (*T, error)) (*T, error) {
	md, err := read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return md, err
}
