package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skirmish/lobby"
	"skirmish/lobby/logging"
	"skirmish/lobby/logging/sinks"
)

func main() {
	var (
		joinID    string
		name      string
		lobbyName string
		jsonLog   string
	)
	flag.StringVar(&joinID, "join", "", "session id to join instead of hosting")
	flag.StringVar(&name, "name", "player", "display name for this peer")
	flag.StringVar(&lobbyName, "lobby-name", "skirmish", "session name when hosting")
	flag.StringVar(&jsonLog, "log-json", "", "write NDJSON events to this file")
	flag.Parse()

	if err := run(joinID, name, lobbyName, jsonLog); err != nil {
		fmt.Fprintln(os.Stderr, "lobbyd:", err)
		os.Exit(1)
	}
}

func run(joinID, name, lobbyName, jsonLog string) error {
	cfg, err := lobby.LoadConfig()
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	named := []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	if jsonLog != "" {
		f, err := os.OpenFile(jsonLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		named = append(named, logging.NamedSink{Name: "json", Sink: sinks.NewJSON(f, logCfg.JSON.FlushInterval)})
	}
	router, err := logging.NewRouter(nil, logCfg, named)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	hub := lobby.NewMemoryHub()
	dir := hub.NewPeer(lobby.MemberID(name), name)

	sim := lobby.NewLocalSimulation()
	seedSimulation(sim)

	content := lobby.NewLocalContent()
	content.AutoFinish = true

	engine, err := lobby.NewEngine(lobby.Dependencies{
		Directory: dir,
		Sim:       sim,
		Content:   content,
		Catalog:   content,
		Config:    cfg,
		Log:       router,
	})
	if err != nil {
		return err
	}
	dir.Attach(engine.Queue())
	content.Attach(engine.Queue())

	if joinID != "" {
		if err := engine.Join(lobby.SessionID(joinID)); err != nil {
			return err
		}
	} else {
		if err := engine.Host(lobby.HostSettings{Name: lobbyName}); err != nil {
			return err
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			engine.Tick()
		case <-stop:
			engine.Leave()
			return nil
		}
	}
}

// seedSimulation gives the standalone daemon a minimal content set so the
// replicated keys have something to carry.
func seedSimulation(sim *lobby.LocalSimulation) {
	rifle := &lobby.WeaponEntry{Name: "Rifle", NameHash: 501}
	smg := &lobby.WeaponEntry{Name: "SMG", NameHash: 502}
	sim.AddWeapon(rifle)
	sim.AddWeapon(smg)
	sim.SetTeamWeapons(lobby.TeamEagle, []lobby.TieredWeapon{{Entry: rifle, Tier: 1}})
	sim.SetTeamWeapons(lobby.TeamRaven, []lobby.TieredWeapon{{Entry: smg, Tier: 2}})

	jeep := &lobby.Prefab{Name: "Jeep"}
	tank := &lobby.Prefab{Name: "Tank"}
	sim.AddDefaultVehicle(jeep)
	sim.AddDefaultVehicle(tank)
	sim.SetVehicleSlot(lobby.TeamEagle, lobby.VehicleTransport, []lobby.TieredPrefab{{Prefab: jeep}})
	sim.SetVehicleSlot(lobby.TeamEagle, lobby.VehicleArmored, []lobby.TieredPrefab{{Prefab: tank, Tier: 1}})

	mg := &lobby.Prefab{Name: "MachineGun"}
	sim.AddDefaultTurret(mg)
	sim.SetTurretSlot(lobby.TeamRaven, lobby.TurretMachineGun, []lobby.TieredPrefab{{Prefab: mg}})

	sim.AddMap(lobby.MapEntry{Name: "coastline", Official: true})
}
