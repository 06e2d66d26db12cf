// Command vrtbridged runs the VRT translation bridge: it loads the
// mapping registry, starts the Translation Listener, optionally punches
// a NAT port mapping for it, and serves the diagnostic websocket.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hexagon-geo-surv/libiio-vrt/internal/backend"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/config"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/diag"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/hostlib/memory"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/natutil"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/registry"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/translator"
	"github.com/hexagon-geo-surv/libiio-vrt/internal/writelog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	hostCtx := memory.NewContext()

	if cfg.BackendURI != "" {
		host, port, err := backend.ParseURI(cfg.BackendURI)
		if err != nil {
			log.Fatalf("backend: %v", err)
		}
		discovered, err := backend.Create(host, port)
		if err != nil {
			log.Printf("backend: discovery failed, continuing with empty context: %v", err)
		} else {
			defer backend.Shutdown(discovered)
			for _, d := range discovered.Devices() {
				hostCtx.AddDevice(d)
			}
		}
	}

	reg, err := registry.Init(hostCtx)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	if cfg.MappingFile != "" {
		n, err := reg.LoadFile(cfg.MappingFile)
		if err != nil {
			log.Fatalf("registry: load %s: %v", cfg.MappingFile, err)
		}
		log.Printf("registry: loaded %d mappings", n)
	}

	audit, err := writelog.Open(cfg.WriteLog)
	if err != nil {
		log.Fatalf("writelog: %v", err)
	}
	defer audit.Close()

	hub := diag.NewHub()

	var nat *natutil.Mapper
	if cfg.EnableNAT {
		gw, externalIP, err := natutil.Discover()
		if err != nil {
			log.Printf("natutil: %v (continuing without NAT mapping)", err)
		} else {
			nat, err = natutil.MapListenerPort(gw, cfg.ListenerPort, 0)
			if err != nil {
				log.Printf("natutil: %v (continuing without NAT mapping)", err)
			} else {
				log.Printf("natutil: external address %s, mapped port %d", externalIP, nat.ExternalPort())
				nat.StartRefresher(0)
			}
		}
	}

	listener := translator.New(hostCtx, reg, audit, hub)
	if err := listener.Start(uint16(cfg.ListenerPort)); err != nil {
		log.Fatalf("translator: start: %v", err)
	}
	log.Printf("translator: listening on 0.0.0.0:%d", cfg.ListenerPort)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/diag", hub.WSHandler)
	diagSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.DiagPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("diag: listening on %s", diagSrv.Addr)
		if err := diagSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("diag: server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	log.Printf("shutting down")
	listener.Stop()
	if nat != nil {
		nat.Close()
	}
	reg.Cleanup()
}
