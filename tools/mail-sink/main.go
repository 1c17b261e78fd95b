// mail-sink is a local SMTP server for testing deadline reminders.
// It accepts every message, stores the last few in memory, and exposes
// them over HTTP. Point SMTP_ADDR at it during development.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type message struct {
	Timestamp string   `json:"timestamp"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Data      string   `json:"data"`
}

type stats struct {
	Count        int64     `json:"count"`
	LastMessages []message `json:"last_messages"`
	Since        string    `json:"since"`
}

var (
	mu           sync.Mutex
	count        int64
	lastMessages []message
	since        time.Time
	maxStored    = 50
)

func main() {
	since = time.Now().UTC()

	smtpAddr := ":2525"
	if v := os.Getenv("SMTP_ADDR"); v != "" {
		smtpAddr = v
	}
	httpAddr := ":8025"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		httpAddr = v
	}

	ln, err := net.Listen("tcp", smtpAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", smtpAddr, err)
	}
	go func() {
		log.Printf("mail-sink smtp listening on %s", smtpAddr)
		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("accept failed: %v", err)
				continue
			}
			go handleSession(conn)
		}
	}()

	http.HandleFunc("/messages", messagesHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		lastMessages = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("mail-sink http listening on %s", httpAddr)
	log.Fatal(http.ListenAndServe(httpAddr, nil))
}

// handleSession speaks just enough SMTP to collect one or more messages.
func handleSession(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(line string) {
		fmt.Fprintf(w, "%s\r\n", line)
		w.Flush()
	}

	reply("220 mail-sink ready")

	var from string
	var to []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(verb, "HELO"), strings.HasPrefix(verb, "EHLO"):
			reply("250 mail-sink")
		case strings.HasPrefix(verb, "MAIL FROM:"):
			from = strings.Trim(line[len("MAIL FROM:"):], " <>")
			reply("250 ok")
		case strings.HasPrefix(verb, "RCPT TO:"):
			to = append(to, strings.Trim(line[len("RCPT TO:"):], " <>"))
			reply("250 ok")
		case verb == "DATA":
			reply("354 end with <CRLF>.<CRLF>")
			data, err := readData(r)
			if err != nil {
				return
			}
			store(from, to, data)
			from = ""
			to = nil
			reply("250 accepted")
		case verb == "RSET":
			from = ""
			to = nil
			reply("250 ok")
		case verb == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 ok")
		}
	}
}

func readData(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.TrimRight(line, "\r\n") == "." {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

func store(from string, to []string, data string) {
	msg := message{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		From:      from,
		To:        to,
		Data:      data,
	}

	mu.Lock()
	count++
	lastMessages = append(lastMessages, msg)
	if len(lastMessages) > maxStored {
		lastMessages = lastMessages[len(lastMessages)-maxStored:]
	}
	current := count
	mu.Unlock()

	log.Printf("message received #%d: from=%s to=%v", current, from, to)
}

func messagesHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:        count,
		LastMessages: lastMessages,
		Since:        since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
