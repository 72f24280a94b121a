// Command roomclient joins a room from the terminal. Plain input lines are
// appended to the shared buffer; lines starting with a slash are commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/coderoom/backend/internal/client"
	"github.com/zhouzirui/coderoom/backend/internal/client/completion"
	"github.com/zhouzirui/coderoom/backend/internal/client/dispatch"
	"github.com/zhouzirui/coderoom/backend/internal/client/geometry"
	"github.com/zhouzirui/coderoom/backend/internal/client/session"
	"github.com/zhouzirui/coderoom/backend/internal/client/transport"
	"github.com/zhouzirui/coderoom/backend/internal/config"
)

const help = `commands:
  /run [language]   execute the buffer (default -lang)
  /chat <text>      send a chat message
  /complete         ask for an AI suggestion at the caret
  /tab              insert a tab at the caret
  /caret <offset>   move the caret
  /show             print the buffer, carets and chat
  /quit             leave the room
anything else is appended to the buffer as a new line`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	roomName := flag.String("room", "", "room code to join")
	username := flag.String("user", cfg.Username, "display name")
	relayURL := flag.String("relay", cfg.RelayURL, "relay base URL")
	completionURL := flag.String("completion", cfg.CompletionURL, "completion backend base URL")
	language := flag.String("lang", "python", "language used by /run")
	flag.Parse()

	if *roomName == "" {
		flag.Usage()
		log.Fatal("请通过 -room 指定房间号")
	}

	caretMode, err := dispatch.ParseCaretMode(cfg.RemoteCaret)
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := transport.RoomURL(*relayURL, *roomName, *username)
	if err != nil {
		log.Fatalf("invalid relay address: %v", err)
	}

	resolver := geometry.NewResolver(geometry.Metrics{
		LineHeight:   cfg.LineHeight,
		PaddingTop:   cfg.PaddingTop,
		PaddingLeft:  cfg.PaddingLeft,
		PaddingRight: cfg.PaddingRight,
		WrapWidth:    cfg.WrapWidth,
	}, geometry.Monospace{CharWidth: cfg.CharWidth, TabSize: cfg.TabSize})

	out := &terminal{w: os.Stdout}
	ch := transport.New(transport.Options{})
	c := client.New(ch, out, client.Options{
		Room:        *roomName,
		Debounce:    cfg.Debounce,
		Resolver:    resolver,
		RemoteCaret: caretMode,
		Completer:   completion.New(*completionURL, nil),
	})

	if err := ch.Connect(ctx, url); err != nil {
		log.Fatalf("failed to join room %s: %v", *roomName, err)
	}
	out.printf("joined room %s (type /help for commands)\n", *roomName)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	go readCommands(ctx, os.Stdin, c, out, *language, stop)

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func readCommands(ctx context.Context, in io.Reader, c *client.Client, out *terminal, language string, quit func()) {
	defer quit()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		cmd, arg, _ := strings.Cut(line, " ")

		switch {
		case !strings.HasPrefix(line, "/"):
			appendLine(ctx, c, line)
		case cmd == "/quit":
			return
		case cmd == "/help":
			out.printf("%s\n", help)
		case cmd == "/run":
			lang := strings.TrimSpace(arg)
			if lang == "" {
				lang = language
			}
			c.Execute(lang)
		case cmd == "/chat":
			c.Chat(arg)
		case cmd == "/complete":
			c.Complete(ctx)
		case cmd == "/tab":
			c.InsertTab()
		case cmd == "/caret":
			offset, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil {
				out.printf("usage: /caret <offset>\n")
				continue
			}
			c.MoveCaret(offset)
		case cmd == "/show":
			snap, err := c.Snapshot(ctx)
			if err != nil {
				return
			}
			out.snapshot(snap)
		default:
			out.printf("unknown command %s\n", cmd)
		}
	}
}

func appendLine(ctx context.Context, c *client.Client, line string) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return
	}
	text := snap.Buffer
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text += line
	c.Edit(text, utf8.RuneCountInString(text))
}

// terminal renders session events as plain text lines.
type terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

func (t *terminal) RenderBuffer(text string, caret int) {
	t.printf("--- buffer updated (%d chars, caret %d) ---\n%s\n---\n", utf8.RuneCountInString(text), caret, text)
}

func (t *terminal) ShowOutput(o dispatch.Output) {
	if o.Error {
		t.printf("[error] %s\n", o.Text)
		return
	}
	t.printf("[output]\n%s\n", o.Text)
}

func (t *terminal) AppendChat(e session.ChatEntry) {
	if e.System {
		t.printf("[%s] * %s\n", e.Timestamp, e.Text)
		return
	}
	t.printf("[%s] %s: %s\n", e.Timestamp, e.Author, e.Text)
}

func (t *terminal) MoveCursor(cur session.Cursor) {
	t.printf("[caret] %s at %d (%.0f,%.0f)\n", cur.Participant, cur.Offset, cur.Coords.Left, cur.Coords.Top)
}

func (t *terminal) Notice(msg string) {
	t.printf("[notice] %s\n", msg)
}

func (t *terminal) snapshot(s session.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "room %s, caret %d\n%s\n", s.Room, s.Caret, s.Buffer)
	for _, cur := range s.Cursors {
		fmt.Fprintf(t.w, "  %s at %d\n", cur.Participant, cur.Offset)
	}
	for _, e := range s.Chat {
		fmt.Fprintf(t.w, "  [%s] %s: %s\n", e.Timestamp, e.Author, e.Text)
	}
}
