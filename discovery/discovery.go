// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery locates Intiface servers on the local network via mDNS.
//
// intiface-engine can advertise itself with the service type
// "_intiface_engine._tcp" when started with mDNS broadcast enabled. When no
// websocket URL is configured, the bridge browses for that service and
// connects to the first server found.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/soothill/haptic-bridge/pkg/logger"
)

// DefaultServiceType is the mDNS service type advertised by intiface-engine.
const DefaultServiceType = "_intiface_engine._tcp"

// DefaultDomain is the mDNS browse domain.
const DefaultDomain = "local."

// Server is a discovered Intiface server.
type Server struct {
	Name     string
	Address  net.IP
	Port     int
	Hostname string
}

// URL returns the websocket URL for the server.
func (s *Server) URL() string {
	return fmt.Sprintf("ws://%s", net.JoinHostPort(s.Address.String(), fmt.Sprintf("%d", s.Port)))
}

// Scanner browses the local network for Intiface servers.
type Scanner struct {
	serviceType string
	domain      string
	servers     map[string]*Server
	mu          sync.RWMutex // Protects servers map
}

// NewScanner creates a new server scanner.
func NewScanner(serviceType, domain string) *Scanner {
	return &Scanner{
		serviceType: serviceType,
		domain:      domain,
		servers:     make(map[string]*Server),
	}
}

// Discover performs a single browse for Intiface servers, blocking for the
// given timeout.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]*Server, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	// Buffered so slow parsing does not block the resolver
	entries := make(chan *zeroconf.ServiceEntry, 10)
	discovered := make([]*Server, 0)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			server := parseServiceEntry(entry)
			if server == nil {
				continue
			}

			s.mu.Lock()
			s.servers[server.URL()] = server
			s.mu.Unlock()

			mu.Lock()
			discovered = append(discovered, server)
			mu.Unlock()

			logger.Info().
				Str("server_name", server.Name).
				Str("address", server.Address.String()).
				Int("port", server.Port).
				Msg("Discovered Intiface server")
		}
	}()

	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = resolver.Browse(discoverCtx, s.serviceType, s.domain, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	<-discoverCtx.Done()
	wg.Wait()

	return discovered, nil
}

// DiscoverURL browses for servers and returns the websocket URL of the
// first one found.
func (s *Scanner) DiscoverURL(ctx context.Context, timeout time.Duration) (string, error) {
	servers, err := s.Discover(ctx, timeout)
	if err != nil {
		return "", err
	}
	if len(servers) == 0 {
		return "", fmt.Errorf("no intiface server found via mDNS")
	}
	return servers[0].URL(), nil
}

// parseServiceEntry converts a zeroconf service entry to a Server
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Server {
	if entry == nil {
		return nil
	}

	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	// Prefer IPv4, fallback to IPv6
	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	if entry.Port <= 0 {
		return nil
	}

	return &Server{
		Name:     entry.Instance,
		Address:  addr,
		Port:     entry.Port,
		Hostname: entry.HostName,
	}
}

// GetServers returns all servers seen so far.
func (s *Scanner) GetServers() []*Server {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]*Server, 0, len(s.servers))
	for _, server := range s.servers {
		servers = append(servers, server)
	}
	return servers
}
