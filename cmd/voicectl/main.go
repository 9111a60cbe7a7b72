// voicectl - interactive voice client for a clawft gateway
//
// Connects through the networked adapter, mirrors voice status events
// into a local session, and drives push-to-talk turns from stdin. Useful
// for smoke-testing a gateway or simd instance.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/clawft/clawft-go/internal/config"
	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/backend"
	"github.com/clawft/clawft-go/pkg/voice"
)

func main() {
	gatewayURL := flag.String("gateway", "", "Gateway URL (overrides CLAWFT_GATEWAY_URL)")
	token := flag.String("token", "", "Bearer token (overrides CLAWFT_TOKEN)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := config.LogLevel()
	if *debug {
		level = "debug"
	}
	log.Init(level)

	url := *gatewayURL
	if url == "" {
		url = config.GatewayURL()
	}
	tok := *token
	if tok == "" {
		tok = config.GatewayToken()
	}

	adapter, err := backend.New(backend.DefaultConfig().
		WithMode(backend.ModeGateway).
		WithGateway(url, tok).
		WithLogger(log.L()))
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := adapter.Init(ctx); err != nil {
		stdlog.Fatalf("❌ Failed to reach gateway at %s: %v", url, err)
	}
	defer adapter.Dispose()

	caps := adapter.Capabilities()
	fmt.Printf("Connected to %s\n", url)
	fmt.Printf("Capabilities: %+v\n", caps)
	if !caps.Realtime {
		stdlog.Fatal("❌ Gateway does not support realtime voice")
	}

	session := voice.NewSession(adapter, log.L())
	unbind := session.Bind(adapter.Events())
	defer unbind()

	off := session.OnChange(func(st voice.Status) {
		fmt.Printf("  state=%s", st.State)
		if st.Transcript != "" {
			fmt.Printf(" transcript=%q", st.Transcript)
		}
		if st.Response != "" {
			fmt.Printf(" response=%q", st.Response)
		}
		fmt.Println()
	})
	defer off()

	fmt.Println("Enter toggles push to talk, q quits.")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	pressed := false
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || line == "q" {
				return
			}
			if pressed {
				if err := session.StopRecording(ctx); err != nil {
					fmt.Printf("  release failed: %v\n", err)
				}
			} else {
				if err := session.StartRecording(ctx); err != nil {
					fmt.Printf("  press failed: %v\n", err)
					continue
				}
			}
			pressed = !pressed
		}
	}
}
