package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//go:embed data/attractions.json
var bundled []byte

// ErrNotFound is returned when a city or attraction id is not in the catalog.
var ErrNotFound = errors.New("not found")

// AllCategories is the category id that disables category filtering.
const AllCategories = "all"

// Coordinates is an optional map position for an attraction.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Attraction is a single tourist attraction. NameLocal, DescriptionLocal and
// CategoryLocal carry the source-language (Tamil) text.
type Attraction struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	NameLocal        string       `json:"name_local"`
	Description      string       `json:"description"`
	DescriptionLocal string       `json:"description_local"`
	City             string       `json:"city"`
	CityLocal        string       `json:"city_local"`
	Category         string       `json:"category"`
	CategoryLocal    string       `json:"category_local"`
	Image            string       `json:"image,omitempty"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
}

// City owns an ordered list of attractions.
type City struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	NameLocal        string       `json:"name_local"`
	Description      string       `json:"description"`
	DescriptionLocal string       `json:"description_local"`
	Attractions      []Attraction `json:"attractions"`
}

// Category is an attraction category used for filtering.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NameLocal string `json:"name_local"`
}

// Catalog is an immutable snapshot of the attraction data. Accessors return
// copies so callers cannot mutate the snapshot.
type Catalog struct {
	cities     []City
	categories []Category
	cityIdx    map[string]int
	attrIdx    map[string]Attraction
}

type catalogFile struct {
	Categories []Category `json:"categories"`
	Cities     []City     `json:"cities"`
}

// Bundled returns the catalog compiled into the binary.
func Bundled() *Catalog {
	c, err := Parse(bundled)
	if err != nil {
		panic("catalog: bundled data is invalid: " + err.Error())
	}
	return c
}

// Parse decodes catalog JSON and validates ids. Attraction city names are
// filled from the owning city when omitted.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		categories: f.Categories,
		cityIdx:    make(map[string]int, len(f.Cities)),
		attrIdx:    make(map[string]Attraction),
	}
	for i := range f.Cities {
		city := &f.Cities[i]
		if city.ID == "" {
			return nil, fmt.Errorf("city %d: missing id", i)
		}
		if _, dup := c.cityIdx[city.ID]; dup {
			return nil, fmt.Errorf("duplicate city id %q", city.ID)
		}
		c.cityIdx[city.ID] = i
		for j := range city.Attractions {
			a := &city.Attractions[j]
			if a.ID == "" {
				return nil, fmt.Errorf("city %q attraction %d: missing id", city.ID, j)
			}
			if _, dup := c.attrIdx[a.ID]; dup {
				return nil, fmt.Errorf("duplicate attraction id %q", a.ID)
			}
			if a.City == "" {
				a.City = city.Name
			}
			if a.CityLocal == "" {
				a.CityLocal = city.NameLocal
			}
			c.attrIdx[a.ID] = *a
		}
	}
	c.cities = f.Cities
	return c, nil
}

// Cities returns all cities in catalog order.
func (c *Catalog) Cities() []City {
	out := make([]City, len(c.cities))
	for i, city := range c.cities {
		out[i] = copyCity(city)
	}
	return out
}

// City looks up a city by id.
func (c *Catalog) City(id string) (City, error) {
	i, ok := c.cityIdx[id]
	if !ok {
		return City{}, fmt.Errorf("city %q: %w", id, ErrNotFound)
	}
	return copyCity(c.cities[i]), nil
}

// Attraction looks up an attraction by id.
func (c *Catalog) Attraction(id string) (Attraction, error) {
	a, ok := c.attrIdx[id]
	if !ok {
		return Attraction{}, fmt.Errorf("attraction %q: %w", id, ErrNotFound)
	}
	return a, nil
}

// Categories returns the category list in catalog order.
func (c *Catalog) Categories() []Category {
	return append([]Category(nil), c.categories...)
}

// Attractions returns attractions for cityID ("" for every city) filtered by
// category ("" or "all" for every category). An unknown city yields an empty
// list, not an error. Category matching is case-insensitive against the
// attraction's English category.
func (c *Catalog) Attractions(cityID, category string) []Attraction {
	var src []Attraction
	if cityID == "" {
		for _, city := range c.cities {
			src = append(src, city.Attractions...)
		}
	} else if i, ok := c.cityIdx[cityID]; ok {
		src = c.cities[i].Attractions
	}

	out := make([]Attraction, 0, len(src))
	for _, a := range src {
		if category != "" && category != AllCategories && !strings.EqualFold(a.Category, category) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func copyCity(c City) City {
	c.Attractions = append([]Attraction(nil), c.Attractions...)
	return c
}
