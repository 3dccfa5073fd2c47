package fakeapi

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/equiptrack-client/equipment"
)

// catalog keeps equipment in insertion order with its usage history.
type catalog struct {
	items  map[string]*equipment.Equipment
	order  []string
	usages map[string][]equipment.Usage // equipment id to history, oldest first
	lock   sync.RWMutex
}

func newCatalog() *catalog {
	return &catalog{
		items:  make(map[string]*equipment.Equipment),
		usages: make(map[string][]equipment.Usage),
	}
}

func newQRCode() string {
	return "EQ-" + strings.ToUpper(uuid.New().String()[:8])
}

func (c *catalog) add(e equipment.Equipment, now time.Time) equipment.Equipment {
	c.lock.Lock()
	defer c.lock.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.QRCode == "" {
		e.QRCode = newQRCode()
	}
	if e.Status == "" {
		e.Status = equipment.StatusAvailable
	}
	e.CreatedAt, e.UpdatedAt = now, now
	if _, ok := c.items[e.ID]; !ok {
		c.order = append(c.order, e.ID)
	}
	c.items[e.ID] = &e
	return e
}

// get resolves an id or a QR code.
func (c *catalog) get(idOrCode string) (equipment.Equipment, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if e, ok := c.items[idOrCode]; ok {
		return *e, true
	}
	for _, e := range c.items {
		if e.QRCode == idOrCode {
			return *e, true
		}
	}
	return equipment.Equipment{}, false
}

func (c *catalog) put(e equipment.Equipment, now time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	e.UpdatedAt = now
	c.items[e.ID] = &e
}

func (c *catalog) remove(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	delete(c.usages, id)
	c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	return true
}

func (c *catalog) all() []equipment.Equipment {
	c.lock.RLock()
	defer c.lock.RUnlock()

	out := make([]equipment.Equipment, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

// filter matches status and category exactly and name against a case-insensitive substring.
func (c *catalog) filter(status, category, location, name string) []equipment.Equipment {
	name = strings.ToLower(name)
	var out []equipment.Equipment
	for _, e := range c.all() {
		switch {
		case status != "" && string(e.Status) != status:
		case category != "" && e.Category != category:
		case location != "" && e.Location != location:
		case name != "" && !strings.Contains(strings.ToLower(e.Name+" "+e.Description), name):
		default:
			out = append(out, e)
		}
	}
	return out
}

func (c *catalog) addUsage(u equipment.Usage) equipment.Usage {
	c.lock.Lock()
	defer c.lock.Unlock()

	u.ID = uuid.New().String()
	c.usages[u.EquipmentID] = append(c.usages[u.EquipmentID], u)
	return u
}

// history returns usage newest first.
func (c *catalog) history(id string) []equipment.Usage {
	c.lock.RLock()
	defer c.lock.RUnlock()

	out := slices.Clone(c.usages[id])
	slices.Reverse(out)
	return out
}

func (c *catalog) statistics() equipment.Statistics {
	stats := equipment.Statistics{
		ByStatus:   map[equipment.Status]int{},
		ByCategory: map[string]int{},
	}
	for _, e := range c.all() {
		stats.Total++
		stats.ByStatus[e.Status]++
		if e.Category != "" {
			stats.ByCategory[e.Category]++
		}
	}
	c.lock.RLock()
	for _, u := range c.usages {
		stats.UsageCount += len(u)
	}
	c.lock.RUnlock()
	return stats
}
