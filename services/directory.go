package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"gorm.io/gorm"
)

// EntityKind selects a directory collection for name lookups
type EntityKind string

const (
	EntityGovernorate EntityKind = "governorate"
	EntityRegion      EntityKind = "region"
	EntityDistrict    EntityKind = "district"
	EntityTechnician  EntityKind = "technician"
	EntityBranch      EntityKind = "branch"
)

// DirectoryCache holds read-mostly reference data. It loads everything on
// first use and keeps it until Invalidate is called; there is no TTL.
type DirectoryCache struct {
	db      *gorm.DB
	timeout time.Duration

	mu             sync.RWMutex
	loaded         bool
	governorates   map[string]models.Governorate
	regions        map[string]models.Region
	districts      map[string]models.District
	districtByName map[string]string
	technicians    map[string]models.Technician
	branches       map[string]models.Branch
}

// NewDirectoryCache creates an empty cache backed by db
func NewDirectoryCache(db *gorm.DB, timeout time.Duration) *DirectoryCache {
	return &DirectoryCache{db: db, timeout: timeout}
}

// Load populates the cache if it is empty
func (c *DirectoryCache) Load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh reloads every collection from the store
func (c *DirectoryCache) Refresh(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var (
		governorates []models.Governorate
		regions      []models.Region
		districts    []models.District
		technicians  []models.Technician
		branches     []models.Branch
	)
	db := c.db.WithContext(ctx)
	for _, dest := range []interface{}{&governorates, &regions, &districts, &technicians, &branches} {
		if err := db.Find(dest).Error; err != nil {
			return classify(err, "")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.governorates = make(map[string]models.Governorate, len(governorates))
	for _, g := range governorates {
		c.governorates[g.ID] = g
	}
	c.regions = make(map[string]models.Region, len(regions))
	for _, r := range regions {
		c.regions[r.ID] = r
	}
	c.districts = make(map[string]models.District, len(districts))
	c.districtByName = make(map[string]string, len(districts))
	for _, d := range districts {
		c.districts[d.ID] = d
		c.districtByName[normalizeName(d.Name)] = d.ID
	}
	c.technicians = make(map[string]models.Technician, len(technicians))
	for _, t := range technicians {
		c.technicians[t.ID] = t
	}
	c.branches = make(map[string]models.Branch, len(branches))
	for _, b := range branches {
		c.branches[b.ID] = b
	}
	c.loaded = true
	return nil
}

// Invalidate drops everything; the next lookup reloads
func (c *DirectoryCache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.governorates = nil
	c.regions = nil
	c.districts = nil
	c.districtByName = nil
	c.technicians = nil
	c.branches = nil
	c.mu.Unlock()
}

// Name resolves an id to its display name, falling back to the id itself
// when the entity is unknown or the directory cannot be loaded.
func (c *DirectoryCache) Name(ctx context.Context, kind EntityKind, id string) string {
	if id == "" {
		return ""
	}
	if err := c.Load(ctx); err != nil {
		return id
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var name string
	switch kind {
	case EntityGovernorate:
		name = c.governorates[id].Name
	case EntityRegion:
		name = c.regions[id].Name
	case EntityDistrict:
		name = c.districts[id].Name
	case EntityTechnician:
		name = c.technicians[id].Name
	case EntityBranch:
		name = c.branches[id].Name
	}
	if name == "" {
		return id
	}
	return name
}

// District looks up a district by id
func (c *DirectoryCache) District(ctx context.Context, id string) (models.District, bool, error) {
	if err := c.Load(ctx); err != nil {
		return models.District{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.districts[id]
	return d, ok, nil
}

// Region looks up a region by id
func (c *DirectoryCache) Region(ctx context.Context, id string) (models.Region, bool, error) {
	if err := c.Load(ctx); err != nil {
		return models.Region{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.regions[id]
	return r, ok, nil
}

// Governorate looks up a governorate by id
func (c *DirectoryCache) Governorate(ctx context.Context, id string) (models.Governorate, bool, error) {
	if err := c.Load(ctx); err != nil {
		return models.Governorate{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.governorates[id]
	return g, ok, nil
}

// Technician looks up a technician by id
func (c *DirectoryCache) Technician(ctx context.Context, id string) (models.Technician, bool, error) {
	if err := c.Load(ctx); err != nil {
		return models.Technician{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.technicians[id]
	return t, ok, nil
}

// Branch looks up a branch by id
func (c *DirectoryCache) Branch(ctx context.Context, id string) (models.Branch, bool, error) {
	if err := c.Load(ctx); err != nil {
		return models.Branch{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.branches[id]
	return b, ok, nil
}

// ResolveDistrict derives the region and governorate of a district. Callers
// never set those two fields themselves.
func (c *DirectoryCache) ResolveDistrict(ctx context.Context, districtID string) (models.Location, error) {
	if districtID == "" {
		return models.Location{}, invalidInput("district is required")
	}
	d, ok, err := c.District(ctx, districtID)
	if err != nil {
		return models.Location{}, err
	}
	if !ok {
		return models.Location{}, invalidInput("unknown district %q", districtID)
	}
	return models.Location{DistrictID: d.ID, RegionID: d.RegionID, GovernorateID: d.GovernorateID}, nil
}

// FindDistrictByName matches a free-text location against district names,
// ignoring case and surrounding whitespace.
func (c *DirectoryCache) FindDistrictByName(ctx context.Context, name string) (models.District, bool, error) {
	if normalizeName(name) == "" {
		return models.District{}, false, nil
	}
	if err := c.Load(ctx); err != nil {
		return models.District{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.districtByName[normalizeName(name)]
	if !ok {
		return models.District{}, false, nil
	}
	return c.districts[id], true, nil
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
