// Command genconfig writes the configuration files of a test cluster: one
// file per replica with fresh signing keys and, optionally, a dealt
// random beacon.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/VanDung-dev/HieraChain-Replica/config"
	"github.com/VanDung-dev/HieraChain-Replica/crypto"
)

func main() {
	var (
		nodes      = flag.Int("n", 4, "Number of replicas")
		faults     = flag.Int("f", -1, "Tolerated faults (default (n-1)/3)")
		alg        = flag.String("alg", "ED25519", "Signature algorithm (ED25519, SECP256K1)")
		format     = flag.String("format", "json", "Output encoding (json, toml, yaml, binary)")
		outDir     = flag.String("out", "configs", "Output directory")
		ipFile     = flag.String("ip", "", "Newline-delimited replica addresses (default loopback)")
		basePort   = flag.Int("base-port", 9000, "First replica port when no address file is given")
		clientPort = flag.Int("client-port", 10000, "First client port; replica i gets client-port+i")
		blockSize  = flag.Int("b", 100, "Transactions per block")
		payload    = flag.Int("payload", 0, "Transaction payload size in bytes")
		delta      = flag.Int("delta", 50, "Round timeout in milliseconds")
		threshold  = flag.Int("t", -1, "Beacon threshold (default f+1, 0 disables)")
	)
	flag.Parse()

	if err := run(*nodes, *faults, *alg, *format, *outDir, *ipFile, *basePort, *clientPort,
		*blockSize, *payload, *delta, *threshold); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(nodes, faults int, algName, formatName, outDir, ipFile string,
	basePort, clientPort, blockSize, payload, delta, threshold int) error {
	alg, err := crypto.ParseAlgorithm(algName)
	if err != nil {
		return err
	}
	format, err := config.ParseFormat(formatName)
	if err != nil {
		return err
	}
	if faults < 0 {
		faults = (nodes - 1) / 3
	}
	if threshold < 0 {
		threshold = faults + 1
	}

	c := cluster{
		Nodes:      nodes,
		Faults:     faults,
		Algorithm:  alg,
		BasePort:   basePort,
		ClientPort: clientPort,
		BlockSize:  blockSize,
		Payload:    payload,
		Delta:      time.Duration(delta) * time.Millisecond,
		Threshold:  threshold,
	}
	if ipFile != "" {
		if c.Hosts, err = config.ReadAddressFile(ipFile); err != nil {
			return err
		}
	}

	pterm.DefaultHeader.Println("HieraChain cluster configuration")

	spinner, _ := pterm.DefaultSpinner.Start("Generating keys")
	generated, err := generate(c)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Generated %d %s key pairs", nodes, alg))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", outDir, err)
	}
	paths, err := writeAll(outDir, generated, format)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"ID", "Address", "Client port", "Public key", "File"}}
	for i, n := range generated {
		pk := hex.EncodeToString(n.PKMap[n.ID])
		if len(pk) > 16 {
			pk = pk[:16] + "…"
		}
		data = append(data, []string{
			fmt.Sprint(i), n.NetMap[n.ID], fmt.Sprint(n.ClientPort), pk, paths[i],
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if threshold > 0 {
		pterm.Info.Printfln("Beacon dealt with threshold %d of %d", threshold, nodes)
	}
	pterm.Success.Printfln("Wrote %d %s configs to %s (n=%d, f=%d)", nodes, format, outDir, nodes, faults)
	return nil
}
