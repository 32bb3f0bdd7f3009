// Command client is an interactive test client for the escape-game
// server. It speaks the framed websocket protocol and prints every
// event the server pushes.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeCreateRoom     = 101
	MsgTypeJoinRoom       = 102
	MsgTypeStartGame      = 103
	MsgTypeEnterNPCChat   = 105
	MsgTypeSendNPCMessage = 107
	MsgTypeGetGameState   = 108
	MsgTypePerformAction  = 109
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:3001", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Printf("Read error: %v", err)
				return
			}
			if len(data) < 4 {
				continue
			}
			msgID := binary.BigEndian.Uint16(data[0:2])
			log.Printf("<- [%d] %s", msgID, data[4:])
		}
	}()

	var roomCode string
	scanner := bufio.NewScanner(os.Stdin)
	log.Println("Commands: create <name> | join <code> <name> | start | chat <npc> | say <npc> <text> | state | action <id>")

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "create":
			send(c, MsgTypeCreateRoom, map[string]string{"username": fields[1]})
		case "join":
			roomCode = fields[1]
			send(c, MsgTypeJoinRoom, map[string]string{"roomCode": fields[1], "username": fields[2]})
		case "code":
			roomCode = fields[1]
		case "start":
			send(c, MsgTypeStartGame, map[string]string{"roomCode": roomCode})
		case "chat":
			send(c, MsgTypeEnterNPCChat, map[string]string{"roomCode": roomCode, "npcId": fields[1]})
		case "say":
			send(c, MsgTypeSendNPCMessage, map[string]string{
				"roomCode": roomCode,
				"npcId":    fields[1],
				"message":  strings.Join(fields[2:], " "),
			})
		case "state":
			send(c, MsgTypeGetGameState, map[string]string{"roomCode": roomCode})
		case "action":
			send(c, MsgTypePerformAction, map[string]string{"roomCode": roomCode, "actionId": fields[1]})
		case "quit":
			return
		}

		select {
		case <-interrupt:
			return
		default:
		}
	}
}
