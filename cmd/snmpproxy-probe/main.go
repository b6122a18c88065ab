// Command snmpproxy-probe issues a single real SNMPv2c Get through a
// running proxy, for a chosen routing token and OID, and prints the
// decoded response. It exists so an operator can verify a new backend
// routing token end to end without a full NMS.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gosnmp/gosnmp"
)

func main() {
	target := flag.String("target", "127.0.0.1", "proxy host to query")
	port := flag.Uint("port", 161, "proxy UDP port")
	community := flag.String("community", "", "routing token (backend hostname), optionally with an @context suffix")
	oid := flag.String("oid", "1.3.6.1.2.1.1.1.0", "OID to fetch with a single Get")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	retries := flag.Int("retries", 1, "SNMP retries")
	flag.Parse()

	if *community == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -community")
		os.Exit(2)
	}

	client := &gosnmp.GoSNMP{
		Target:    *target,
		Port:      uint16(*port),
		Community: *community,
		Version:   gosnmp.Version2c,
		Timeout:   *timeout,
		Retries:   *retries,
	}

	if err := client.Connect(); err != nil {
		log.Fatalf("connect to %s:%d: %v", *target, *port, err)
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{*oid})
	if err != nil {
		log.Fatalf("get %s via routing token %q: %v", *oid, *community, err)
	}

	for _, v := range result.Variables {
		fmt.Printf("%s = %v\n", v.Name, v.Value)
	}
}
