package main

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	// The transport layer is expected to sit behind a permissive edge.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	port := uint16(8080)
	if raw := os.Getenv("PORT"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			log.Fatal().Str("port", raw).Msg("invalid PORT")
		}
		port = uint16(parsed)
	}

	level := CreateDefaultMultiplayerLevel()
	gs := NewGameState(log, level)
	processor := NewInputProcessor(gs, log)

	go gs.RunTickLoop(context.Background())

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		go handleSocket(gs, processor, conn, log)
	})

	addr := "0.0.0.0:" + strconv.Itoa(int(port))
	log.Info().Str("addr", addr).Msg("server listening")
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// handleSocket owns one session: the connect sequence, the inbound read
// loop, and disconnect cleanup.
func handleSocket(gs *GameState, processor *InputProcessor, conn *websocket.Conn, log zerolog.Logger) {
	playerID := uuid.New()
	session := NewSession(playerID, conn, log)
	player := gs.AddPlayer(playerID)
	gs.sessions.Add(session)

	go session.RunWriter()

	spawn := gs.level.JoinSpawnPosition()
	session.Send(WelcomeFrame{
		Type:          FrameWelcome,
		PlayerID:      playerID.String(),
		SpawnPosition: posFromVec(spawn),
	})
	session.Send(LevelDataFrame{Type: FrameLevelData, Objects: gs.level.Objects})

	sendJoinState(gs, session, player)

	gs.SpawnJoinRock(spawn)

	world := player.WorldPosition()
	gs.sessions.BroadcastBuilt(playerID, func(s *Session) any {
		return PlayerJoinedFrame{
			Type:     FramePlayerJoined,
			PlayerID: playerID.String(),
			Position: posFromVec(toLocal(world, gs.receiverOrigin(s.PlayerID))),
		}
	})

	log.Info().Str("player", playerID.String()).Msg("player connected")

	// Inbound loop. The tick loop observes the disconnect lazily; nothing a
	// client sends may take the server down.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("player", playerID.String()).Msg("websocket error")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		processor.ProcessMessage(player, data)
	}

	disconnect(gs, session, playerID)
	_ = conn.Close()
	log.Info().Str("player", playerID.String()).Msg("player disconnected")
}

// sendJoinState replays the live world to a fresh participant: other
// players, dynamic objects, vehicles and available weapon pickups.
func sendJoinState(gs *GameState, session *Session, player *Player) {
	origin := player.Origin()

	players := []PlayerInfo{}
	gs.players.Range(func(id uuid.UUID, other *Player) bool {
		if id != player.ID {
			players = append(players, other.Info(origin))
		}
		return true
	})
	session.Send(PlayersListFrame{Type: FramePlayersList, Players: players})

	var objects []DynamicObjectInfo
	gs.objects.Range(func(obj *DynamicObject) bool {
		objects = append(objects, obj.Info(origin))
		return true
	})
	if len(objects) > 0 {
		session.Send(DynamicObjectsListFrame{Type: FrameDynamicObjectsList, Objects: objects})
	}

	gs.vehicles.Range(func(v *Vehicle) bool {
		if v.Destroyed() {
			return true
		}
		v.mu.Lock()
		frame := VehicleSpawnedFrame{
			Type:      FrameVehicleSpawned,
			VehicleID: v.ID,
			Kind:      v.Kind,
			Position:  posFromVec(toLocal(worldPosition(v.WorldOrigin, v.LocalPosition), origin)),
			Rotation:  rotFromQuat(v.Rotation),
			Health:    v.Health,
		}
		v.mu.Unlock()
		session.Send(frame)
		return true
	})

	for _, w := range gs.spawns.ActiveWeapons() {
		session.Send(WeaponSpawnFrame{
			Type:       FrameWeaponSpawn,
			WeaponID:   w.WeaponID,
			WeaponType: w.WeaponType,
			Position:   posFromVec(toLocal(w.Position, origin)),
		})
	}
}

// disconnect force-releases the participant's grabs, removes it from the
// store and physics, and tells everyone.
func disconnect(gs *GameState, session *Session, playerID uuid.UUID) {
	released := gs.RemovePlayer(playerID)
	gs.sessions.Remove(playerID)

	for _, objectID := range released {
		gs.sessions.BroadcastToAll(ObjectReleasedFrame{
			Type:     FrameObjectReleased,
			ObjectID: objectID,
			PlayerID: playerID.String(),
		})
	}
	gs.sessions.BroadcastToAll(PlayerLeftFrame{
		Type:     FramePlayerLeft,
		PlayerID: playerID.String(),
	})
}
