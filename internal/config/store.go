// Package config owns configuration directory resolution, the bindings
// and macro properties-file grammar, default-bindings bootstrap, and
// mtime-based live reload, grounded on original_source's ConfigPath.cpp
// and G13.cpp (parse_bindings_from_stream/loadBindings/loadMacro).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dalmatheo/g13d/internal/action"
	"github.com/dalmatheo/g13d/internal/macro"
)

const NumKeys = 40
const NumProfiles = 4

// defaultBindings is written verbatim to bindings-0.properties (and any
// other missing profile file) the first time it is loaded. Preserved
// byte-for-byte from original_source/g13-driver/src/driver/G13.cpp,
// including the deliberately ambiguous G0=p,k.1 and the overlapping
// G21=p,k.57 / G22=p,k.57 assignments — per spec.md §9, these are kept
// verbatim rather than "fixed".
const defaultBindings = `# Default G13 Key Bindings
G19=p,k.42
G18=p,k.18
G17=p,k.16
G16=p,k.10
G9=p,k.3
G15=p,k.9
G8=p,k.2
G14=p,k.8
G7=p,k.15
G13=p,k.7
G12=p,k.6
G6=p,k.46
G11=p,k.5
G5=p,k.76
G10=p,k.4
G4=p,k.75
G3=p,k.81
G2=p,k.80
G1=p,k.79
G0=p,k.1
G39=p,k.31
color=0,0,255
G38=p,k.32
G37=p,k.30
G36=p,k.17
G35=p,k.11
G34=p,k.72
G33=p,k.71
G32=p,k.62
G31=p,k.61
G30=p,k.60
G29=p,k.59
G23=p,k.58
G22=p,k.57
G21=p,k.57
G20=p,k.50
`

// Color is the backlight RGB triple set via the "color" directive.
type Color struct {
	R, G, B byte
}

// Bindings is one profile's fully-resolved key assignments.
type Bindings struct {
	Color Color
	Keys  [NumKeys]action.Action
}

// Store resolves paths, parses/writes properties files, and tracks the
// on-disk modification time of each profile's bindings file for live
// reload.
type Store struct {
	Paths  Paths
	Engine *macro.Engine

	mtimes [NumProfiles]time.Time
	loaded [NumProfiles]*Bindings
}

// NewStore creates a Store bound to the given macro engine, used to
// resolve "m,<id>,<repeats>" bindings into Macro actions.
func NewStore(paths Paths, engine *macro.Engine) *Store {
	return &Store{Paths: paths, Engine: engine}
}

// LoadProfile reads (or, if absent, writes defaults then reads)
// bindings-<profile>.properties and returns the resolved Bindings. It
// records the file's on-disk modification time before returning, so a
// subsequent PollForUpdate call never observes a write that happened
// after this Load as already stale.
func (s *Store) LoadProfile(profile int) (*Bindings, error) {
	if profile < 0 || profile >= NumProfiles {
		return nil, fmt.Errorf("config: profile %d out of range", profile)
	}
	path := s.Paths.BindingsPath(profile)

	text, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := s.Paths.EnsureConfigDir(); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(defaultBindings), 0o644); err != nil {
			return nil, fmt.Errorf("config: write default bindings %s: %w", path, err)
		}
		text = []byte(defaultBindings)
	}

	b := s.parseBindings(string(text), s.loaded[profile])
	s.loaded[profile] = b

	info, statErr := os.Stat(path)
	if statErr == nil {
		s.mtimes[profile] = info.ModTime()
	}

	return b, nil
}

// PollForUpdate compares the bindings file's current on-disk modification
// time against the one recorded at the last successful Load. It returns
// true iff the current time is strictly greater than a previously
// recorded non-zero time — the detector never fires on the very first
// observation, per spec.md §4.4/§8.
func (s *Store) PollForUpdate(profile int) (bool, error) {
	if profile < 0 || profile >= NumProfiles {
		return false, fmt.Errorf("config: profile %d out of range", profile)
	}
	info, err := os.Stat(s.Paths.BindingsPath(profile))
	if err != nil {
		return false, nil
	}
	recorded := s.mtimes[profile]
	if recorded.IsZero() {
		return false, nil
	}
	return info.ModTime().After(recorded), nil
}

// parseBindings resolves text into a Bindings. prev is the previously
// resolved Bindings for this same profile slot (nil on first load); a key
// not assigned by any line in text — because the line is simply absent
// (a partial rewrite) or because its macro reference fails to resolve
// (MacroMissing) — keeps whatever Action prev had bound to it, mirroring
// original_source's persistent actions[] array, which
// parse_bindings_from_stream only ever overwrites for keys actually
// present on a line. Per spec.md §7, MacroMissing means "leave the key at
// its previous Action", not reset it to NoOp.
func (s *Store) parseBindings(text string, prev *Bindings) *Bindings {
	b := &Bindings{Color: Color{128, 128, 128}}
	for _, line := range parseProperties(text) {
		switch {
		case line.key == "color":
			if r, g, bl, ok := parseColor(line.value); ok {
				b.Color = Color{r, g, bl}
			}
		default:
			gk, ok := gKeyIndex(line.key)
			if !ok || gk < 0 || gk >= NumKeys {
				continue
			}
			if scancode, ok := passThroughSpec(line.value); ok {
				b.Keys[gk] = action.NewPassThrough(scancode)
				continue
			}
			if macroID, repeats, ok := macroSpec(line.value); ok {
				mf, err := s.LoadMacro(macroID)
				if err != nil {
					// MacroMissing: leave the key at its previous Action.
					continue
				}
				events, err := macro.Parse(mf.Sequence)
				if err != nil {
					continue
				}
				b.Keys[gk] = action.NewMacro(s.Engine, events, repeatMode(repeats))
			}
		}
	}
	for i := range b.Keys {
		if b.Keys[i] != nil {
			continue
		}
		if prev != nil && prev.Keys[i] != nil {
			b.Keys[i] = prev.Keys[i]
			continue
		}
		b.Keys[i] = &action.NoOp{}
	}
	return b
}

func repeatMode(repeats int) action.RepeatMode {
	switch {
	case repeats == 0:
		return action.Once()
	case repeats == 1:
		return action.WhileHeld()
	default:
		return action.FixedCount(repeats)
	}
}

// MacroFile is the parsed contents of a macro-<id>.properties file.
type MacroFile struct {
	Name     string
	Sequence string
}

// LoadMacro reads and parses macro-<id>.properties. A missing file is
// reported as an error; callers treat it as MacroMissing (leave the key
// at its previous Action) per spec.md §7.
func (s *Store) LoadMacro(id int) (*MacroFile, error) {
	path := s.Paths.MacroPath(id)
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: macro %d: %w", id, err)
	}
	mf := &MacroFile{}
	for _, line := range parseProperties(string(text)) {
		switch line.key {
		case "name":
			mf.Name = line.value
		case "sequence":
			mf.Sequence = line.value
		}
	}
	return mf, nil
}
