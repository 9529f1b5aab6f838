package schema

import (
	"strings"
	"testing"
)

func TestDDL_DeclaresEveryTable(t *testing.T) {
	tables := []string{
		"exchange", "bank", "exchange_fetch_status", "exchange_data",
		"bank_content", "content_signal", "signal_index",
		"signal_type_override", "exchange_api_config",
	}
	d := DDL()
	for _, tbl := range tables {
		if !strings.Contains(d, "CREATE TABLE IF NOT EXISTS "+tbl+" (") {
			t.Fatalf("missing table %s", tbl)
		}
	}
}

func TestDDL_BuildIndexOrder(t *testing.T) {
	if !strings.Contains(DDL(), "ON content_signal (signal_type, create_time, content_id)") {
		t.Fatalf("content_signal streaming index missing")
	}
}
