package snmpconn

import (
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/connpool/pkg/connpool/config"
)

func TestNewSessionRejectsUnknownVersion(t *testing.T) {
	_, err := newSession(config.EndpointConfig{IP: "10.0.0.1", Port: 161, Version: "9"})
	if err == nil {
		t.Fatal("expected error for unsupported SNMP version")
	}
}

func TestSNMPv3MsgFlags(t *testing.T) {
	cases := []struct {
		name string
		cred config.V3Credentials
		want gosnmp.SnmpV3MsgFlags
	}{
		{"no auth no priv", config.V3Credentials{}, gosnmp.NoAuthNoPriv},
		{"auth no priv", config.V3Credentials{AuthenticationProtocol: "sha"}, gosnmp.AuthNoPriv},
		{"auth priv", config.V3Credentials{AuthenticationProtocol: "sha", PrivacyProtocol: "aes"}, gosnmp.AuthPriv},
		{"explicit noauth", config.V3Credentials{AuthenticationProtocol: "noauth"}, gosnmp.NoAuthNoPriv},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := snmpv3MsgFlags(tc.cred); got != tc.want {
				t.Fatalf("snmpv3MsgFlags(%+v) = %v, want %v", tc.cred, got, tc.want)
			}
		})
	}
}

func TestMapAuthProto(t *testing.T) {
	if got := mapAuthProto("SHA256"); got != gosnmp.SHA256 {
		t.Fatalf("mapAuthProto case-insensitive failed: got %v", got)
	}
	if got := mapAuthProto("bogus"); got != gosnmp.NoAuth {
		t.Fatalf("mapAuthProto unknown = %v, want NoAuth", got)
	}
}

func TestMapPrivProto(t *testing.T) {
	if got := mapPrivProto("AES256"); got != gosnmp.AES256 {
		t.Fatalf("mapPrivProto case-insensitive failed: got %v", got)
	}
	if got := mapPrivProto("bogus"); got != gosnmp.NoPriv {
		t.Fatalf("mapPrivProto unknown = %v, want NoPriv", got)
	}
}
