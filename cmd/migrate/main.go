package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/crewplanner-backend/internal/bootstrap"
	"github.com/angelmondragon/crewplanner-backend/pkg/db"
	"github.com/angelmondragon/crewplanner-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd up|down|status|version|create|validate [flags]

up, down, status and version run the migrations embedded in this binary.
create and validate work on -dir and need no database.`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", migrate.SourceDir, "migration source directory for create and validate")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for version")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.Create(*dir, *name, time.Now())
		if err != nil {
			exit(err.Error())
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(os.DirFS(*dir)); err != nil {
			exit(err.Error())
		}
		fmt.Println("migrations valid")
		return
	case "version":
		if *version == "" {
			exit("missing -version for version")
		}
	}

	rt := bootstrap.MustStart("migrate")
	defer rt.Close()
	ctx := rt.Logger.WithFields(context.Background(), map[string]any{"env": rt.Config.App.Env, "cmd": *cmd})

	// Opened directly: Database would apply the dev auto-migration before the command runs.
	dbClient, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}
	rt.OnClose("database", dbClient.Close)
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		rt.Fatal(ctx, "failed to get sql handle", err)
	}

	results, err := migrate.Run(ctx, sqlDB, migrate.Files(), *cmd, *version)
	if err != nil {
		rt.Fatal(ctx, "migration failed", err)
	}
	for _, r := range results {
		fmt.Printf("%d\t%-8s\t%s\n", r.Version, r.State, r.Source)
	}
	rt.Logger.Info(rt.Logger.WithField(ctx, "migrations", len(results)), "migrate finished")
}

func exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
