// Package snmpconn is a concrete Node dialer and health.Prober backed by
// gosnmp. It binds the registry's endpoint-addressed Node abstraction to a
// real transport: Dial produces a Node whose Conn is a connected
// *gosnmp.GoSNMP, and Dialer doubles as the health package's Prober by
// issuing a cheap SNMP Get against sysUpTime.
package snmpconn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/connpool/internal/registry"
	"github.com/vpbank/connpool/pkg/connpool/config"
)

// sysUpTimeOID is probed on every health check: a cheap, universally
// implemented OID that confirms the agent is still answering requests.
const sysUpTimeOID = ".1.3.6.1.2.1.1.3.0"

// Dialer constructs gosnmp sessions from resolved endpoint configuration
// and probes them for the health checker.
type Dialer struct{}

// NewDialer returns a ready-to-use Dialer. It holds no state; every method
// is safe for concurrent use.
func NewDialer() *Dialer { return &Dialer{} }

// Dial connects a new gosnmp session for cfg and returns a Node with Conn
// set to the live session, ready for Table.Insert.
func (d *Dialer) Dial(cfg config.EndpointConfig) (*registry.Node, error) {
	sess, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	n := registry.NewNode(cfg.IP, uint16(cfg.Port))
	n.Conn = sess
	return n, nil
}

// Probe implements health.Prober: it issues a single SNMP Get against
// sysUpTime and treats any transport or protocol error as unhealthy.
func (d *Dialer) Probe(ctx context.Context, n *registry.Node) error {
	sess, ok := n.Conn.(*gosnmp.GoSNMP)
	if !ok || sess == nil {
		return fmt.Errorf("snmpconn: node has no gosnmp session")
	}

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, err := sess.Get([]string{sysUpTimeOID})
		done <- result{err: err}
	}()

	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newSession creates and connects a gosnmp session for the given endpoint
// configuration. The caller owns the returned session, which Dial stores
// in the node's Conn field; closing it during teardown is the caller's job.
func newSession(cfg config.EndpointConfig) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:  cfg.IP,
		Port:    uint16(cfg.Port),
		Timeout: cfg.DialTimeout,
		Retries: 1,
		MaxOids: 60,
	}
	if g.Timeout == 0 {
		g.Timeout = 3 * time.Second
	}

	switch cfg.Version {
	case "1":
		g.Version = gosnmp.Version1
		g.Community = cfg.Community
	case "2c":
		g.Version = gosnmp.Version2c
		g.Community = cfg.Community
	case "3":
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = snmpv3MsgFlags(cfg.V3)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.V3.Username,
			AuthenticationProtocol:   mapAuthProto(cfg.V3.AuthenticationProtocol),
			AuthenticationPassphrase: cfg.V3.AuthenticationPassphrase,
			PrivacyProtocol:          mapPrivProto(cfg.V3.PrivacyProtocol),
			PrivacyPassphrase:        cfg.V3.PrivacyPassphrase,
		}
	default:
		return nil, fmt.Errorf("snmpconn: unsupported SNMP version %q", cfg.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmpconn: connect %s:%d: %w", cfg.IP, cfg.Port, err)
	}
	return g, nil
}

func snmpv3MsgFlags(cred config.V3Credentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := cred.AuthenticationProtocol != "" &&
		!strings.EqualFold(cred.AuthenticationProtocol, "noauth")
	hasPriv := cred.PrivacyProtocol != "" &&
		!strings.EqualFold(cred.PrivacyProtocol, "nopriv")

	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToLower(s) {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToLower(s) {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}
