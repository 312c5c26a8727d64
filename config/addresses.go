package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/VanDung-dev/HieraChain-Replica/types"
)

// ReadAddressFile reads a newline-delimited host list. Blank lines and
// lines starting with '#' are skipped.
func ReadAddressFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address file: %w", err)
	}
	defer f.Close()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read address file: %w", err)
	}
	return addrs, nil
}

// ApplyAddresses rewrites the network map from an ordered host list, where
// position i is the address of replica i. This replica's own entry becomes
// 0.0.0.0 on the port of its listed address so it binds on every
// interface. Every address is checked before the map is touched.
func (n *Node) ApplyAddresses(addrs []string) error {
	if n.frozen {
		return ErrFrozen
	}

	ports := make([]uint16, len(addrs))
	for i, addr := range addrs {
		port, err := portOf(addr)
		if err != nil {
			return fmt.Errorf("%w: entry %d %q: %v", ErrMalformedAddress, i, addr, err)
		}
		ports[i] = port
	}

	if n.NetMap == nil {
		n.NetMap = make(map[types.Replica]string, len(addrs))
	}
	for i, addr := range addrs {
		id := types.Replica(i)
		if id == n.ID {
			n.NetMap[id] = fmt.Sprintf("0.0.0.0:%d", ports[i])
			continue
		}
		n.NetMap[id] = addr
	}
	return nil
}

func portOf(addr string) (uint16, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return 0, errors.New("no port separator")
	}
	p, err := strconv.ParseUint(addr[idx+1:], 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(p), nil
}
