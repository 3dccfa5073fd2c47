package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/equiptrack-client/equipment"
	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/jrsteele09/equiptrack-client/httpclient"
	"github.com/jrsteele09/equiptrack-client/internal/bootstrap"
	"github.com/jrsteele09/equiptrack-client/internal/config"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Str("category", string(httpclient.CategoryOf(err))).Msg("equiptrack failed")
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if demo := startDemo(); demo != nil {
		defer demo.Close()
	}

	c, err := config.Load()
	if err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	app, err := bootstrap.New(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		returnError = errors.Join(returnError, app.Close())
	}()
	log.Logger = app.Log

	_, _ = app.Bus.Subscribe(events.SessionExpired, func(evt events.Event) (any, error) {
		app.Log.Warn().Msg("session expired, sign in again")
		return nil, nil
	})

	user, err := app.SignIn(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s <%s> (%s)\n\n", user.FullName(), user.Email, user.Role)

	page, err := app.Equipment.List(ctx, equipment.ListParams{Page: 1})
	if err != nil {
		return err
	}
	printEquipment(page)
	return nil
}

func printEquipment(page *httpclient.Page[equipment.Equipment]) {
	fmt.Printf("Equipment (page %d of %d, %d items)\n", page.Page, page.Pages, page.Total)
	for _, e := range page.Items {
		fmt.Printf("  %-12s %-30s %-12s %s\n", e.QRCode, e.Name, e.Status, e.Location)
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
