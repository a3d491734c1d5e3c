package config

import "testing"

func TestDefaults_Validates(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate(Defaults()) = %v, want nil", err)
	}
}

func TestValidate_RejectsBadSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Fatalf("Validate with schema_version=2: want error, got nil")
	}
}

func TestValidate_RejectsMinSamplesAboveHistoryCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.Predictor.HistoryCapacity = 5
	cfg.Predictor.MinSamplesForSignal = 10
	if err := Validate(&cfg); err == nil {
		t.Fatalf("Validate with min_samples_for_signal > history_capacity: want error, got nil")
	}
}

func TestValidate_RejectsRemoteEnabledWithoutAddr(t *testing.T) {
	cfg := Defaults()
	cfg.Orchestrator.RemoteEnabled = true
	cfg.Orchestrator.RemoteListenAddr = ""
	if err := Validate(&cfg); err == nil {
		t.Fatalf("Validate with remote_enabled=true and empty addr: want error, got nil")
	}
}

func TestValidate_AggregatesMultipleErrors(t *testing.T) {
	cfg := Defaults()
	cfg.NodeID = ""
	cfg.Storage.DBPath = ""
	err := Validate(&cfg)
	if err == nil {
		t.Fatalf("Validate with two violations: want error, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("Load of missing file: want error, got nil")
	}
}
