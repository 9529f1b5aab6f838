package module

import (
	"strings"
	"testing"

	phttp "hma/internal/platform/net/http"
)

type indexPorts struct{ Builder string }

type stub struct{ ports any }

func (s stub) MountRoutes(phttp.Router) {}
func (s stub) Ports() any               { return s.ports }
func (s stub) Name() string             { return "indexer" }

func TestPortsOf(t *testing.T) {
	m := stub{ports: indexPorts{Builder: "pg"}}
	p, ok := PortsOf[indexPorts](m)
	if !ok || p.Builder != "pg" {
		t.Fatalf("ports = %+v %v", p, ok)
	}
	if _, ok := PortsOf[string](m); ok {
		t.Fatal("wrong type matched")
	}
	if _, ok := PortsOf[indexPorts](stub{}); ok {
		t.Fatal("nil ports matched")
	}
}

func TestMustPortsOf_PanicNamesModule(t *testing.T) {
	defer func() {
		msg, _ := recover().(string)
		if !strings.Contains(msg, "module indexer") || !strings.Contains(msg, "module.indexPorts") {
			t.Fatalf("panic = %q", msg)
		}
	}()
	MustPortsOf[indexPorts](stub{ports: 42})
}
