package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// MetroArea groups the cities a "metro" search expands to.
type MetroArea struct {
	Name   string   `json:"name"`
	Cities []string `json:"cities"`
}

type metroFile struct {
	MetroAreas []MetroArea `json:"metro_areas"`
}

// MetroAreas is an immutable, name-indexed set of metro areas.
type MetroAreas struct {
	byName map[string]MetroArea
}

// NewMetroAreas indexes areas by case-insensitive name. Later duplicates win.
func NewMetroAreas(areas []MetroArea) *MetroAreas {
	m := &MetroAreas{byName: make(map[string]MetroArea, len(areas))}
	for _, a := range areas {
		key := strings.ToLower(strings.TrimSpace(a.Name))
		if key == "" {
			continue
		}
		m.byName[key] = a
	}
	return m
}

// LoadMetroAreas reads the metro area file. A missing file yields an empty set.
func LoadMetroAreas(path string) (*MetroAreas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewMetroAreas(nil), nil
		}
		return nil, fmt.Errorf("failed to read metro areas: %w", err)
	}

	var f metroFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse metro areas: %w", err)
	}
	return NewMetroAreas(f.MetroAreas), nil
}

// Cities returns the deduplicated cities of the named area, nil if unknown.
func (m *MetroAreas) Cities(name string) []string {
	if m == nil {
		return nil
	}
	area, ok := m.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(area.Cities))
	var cities []string
	for _, c := range area.Cities {
		c = strings.TrimSpace(c)
		if c == "" || seen[strings.ToLower(c)] {
			continue
		}
		seen[strings.ToLower(c)] = true
		cities = append(cities, c)
	}
	return cities
}

// All returns every area sorted by name.
func (m *MetroAreas) All() []MetroArea {
	if m == nil {
		return nil
	}
	areas := make([]MetroArea, 0, len(m.byName))
	for _, a := range m.byName {
		areas = append(areas, a)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].Name < areas[j].Name })
	return areas
}
