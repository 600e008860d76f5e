// Package main is the admind executable: it loads configuration, wires
// a CoreContext over a UDP transport, and runs until signalled.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/admind"
	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

var (
	configPath = flag.String("config", "", "path to the admind JSON configuration file")
	listenAddr = flag.String("listen", ":5862", "UDP address this node listens on")
	peerFlags  peerList
)

// peerList collects repeated -peer id=name@host:port flags describing
// every cluster member's id, name, and address; this node's own entry
// is added to the cluster like any other.
type peerList []string

func (p *peerList) String() string { return strings.Join(*p, ",") }
func (p *peerList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func init() {
	flag.Var(&peerFlags, "peer", "id=name@host:port, repeatable, one per cluster member including self")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()
	defer glog.Flush()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		glog.Errorf("admind: loading config: %v", err)
		return 1
	}

	cl := cluster.NewCluster(cluster.NodeID(cfg.NodeID))
	peerAddrs := make(map[cluster.NodeID]*net.UDPAddr)
	for _, p := range peerFlags {
		id, name, addr, perr := parsePeer(p)
		if perr != nil {
			glog.Errorf("admind: invalid -peer %q: %v", p, perr)
			return 1
		}
		if err := cl.AddNode(cluster.NewNode(id, name, cfg.Incarnation)); err != nil {
			glog.Errorf("admind: %v", err)
			return 1
		}
		if addr != nil {
			peerAddrs[id] = addr
		}
	}

	conn, err := listenUDP(*listenAddr)
	if err != nil {
		glog.Errorf("admind: listening on %s: %v", *listenAddr, err)
		return 1
	}
	defer conn.Close()

	mcastAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Multicast.GroupAddr, cfg.Multicast.Port))
	if err != nil {
		glog.Errorf("admind: resolving multicast address: %v", err)
		return 1
	}
	transport := admind.NewUDPTransport(conn, mcastAddr)
	for id, addr := range peerAddrs {
		transport.SetPeerAddr(id, addr)
	}

	cc, err := admind.NewCoreContext(cfg, cl, transport, nil)
	if err != nil {
		glog.Errorf("admind: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cc.Run(ctx); err != nil && ctx.Err() == nil {
		glog.Errorf("admind: exited with error: %v", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*cmn.Config, error) {
	if path == "" {
		cfg := cmn.DefaultConfig()
		cfg.Incarnation = 1
		return cfg, cfg.Validate()
	}
	return cmn.LoadConfig(path)
}

func listenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// parsePeer parses "id=name@host:port" or "id=name" (no known address
// yet, filled in later via cluster discovery).
func parsePeer(s string) (cluster.NodeID, string, *net.UDPAddr, error) {
	idPart, rest, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", nil, fmt.Errorf("expected id=name[@host:port]")
	}
	id, err := strconv.ParseUint(idPart, 10, 32)
	if err != nil {
		return 0, "", nil, err
	}
	name, addrPart, hasAddr := strings.Cut(rest, "@")
	if !hasAddr {
		return cluster.NodeID(id), name, nil, nil
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addrPart)
	if err != nil {
		return 0, "", nil, err
	}
	return cluster.NodeID(id), name, udpAddr, nil
}
