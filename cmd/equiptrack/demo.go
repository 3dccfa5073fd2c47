package main

import (
	"os"

	"github.com/jrsteele09/equiptrack-client/equipment"
	"github.com/jrsteele09/equiptrack-client/internal/fakeapi"
	"github.com/jrsteele09/equiptrack-client/users"
	"github.com/rs/zerolog/log"
)

const demoVar = "EQUIPTRACK_DEMO"

// startDemo runs the fake API in-process, seeded with one teacher and a few items, and points
// the configuration at it. It returns nil unless EQUIPTRACK_DEMO is set.
func startDemo() *fakeapi.Server {
	if os.Getenv(demoVar) == "" {
		return nil
	}
	api := fakeapi.Start(fakeapi.WithLogger(log.Logger))
	api.AddUser(users.Profile{
		Username:    "demo",
		Email:       "demo@equiptrack.local",
		FirstName:   "Demo",
		LastName:    "Teacher",
		Role:        users.RoleTeacher,
		Permissions: []string{"equipment:*"},
		Active:      true,
	}, "Dem0Password")
	for _, e := range []equipment.Equipment{
		{Name: "Digital microscope", Category: "optics", Location: "Lab 1"},
		{Name: "Oscilloscope", Category: "electronics", Location: "Lab 2"},
		{Name: "3D printer", Category: "fabrication", Location: "Workshop", Status: equipment.StatusMaintenance},
	} {
		api.AddEquipment(e)
	}

	for k, v := range map[string]string{
		"EQUIPTRACK_API_URL":  api.URL(),
		"EQUIPTRACK_EMAIL":    "demo@equiptrack.local",
		"EQUIPTRACK_PASSWORD": "Dem0Password",
		"EQUIPTRACK_STORAGE":  "memory",
	} {
		_ = os.Setenv(k, v)
	}
	log.Info().Str("url", api.URL()).Msg("demo API started")
	return api
}
