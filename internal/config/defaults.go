package config

// Default configuration values.
const (
	DefaultRawPath       = "data/raw/events.tsv"
	DefaultRawFormat     = "tsv"
	DefaultArtifactsDir  = "artifacts"
	DefaultStateFile     = ".cytops/state.db"
	DefaultWarehousePath = ".cytops/warehouse.db"
	DefaultEnv           = "dev"
	DefaultOutput        = "auto"

	DefaultTimeAdjustHours = 1
	DefaultValidationDays  = 7
	DefaultTestDays        = 7
	DefaultExportFormat    = "parquet"
	DefaultKeepRuns        = 20
)

// ApplyDefaults fills zero-valued fields of a Config.
func (c *Config) ApplyDefaults() {
	if c.RawPath == "" {
		c.RawPath = DefaultRawPath
	}
	if c.RawFormat == "" {
		c.RawFormat = DefaultRawFormat
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = DefaultArtifactsDir
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.Environment == "" {
		c.Environment = DefaultEnv
	}
	if c.ValidationDays == 0 {
		c.ValidationDays = DefaultValidationDays
	}
	if c.TestDays == 0 {
		c.TestDays = DefaultTestDays
	}
	if c.ExportFormat == "" {
		c.ExportFormat = DefaultExportFormat
	}
	if c.KeepRuns == 0 {
		c.KeepRuns = DefaultKeepRuns
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Warehouse == nil {
		c.Warehouse = &WarehouseConfig{}
	}
	c.Warehouse.ApplyDefaults()
}

// ApplyDefaults fills zero-valued fields of a WarehouseConfig.
func (w *WarehouseConfig) ApplyDefaults() {
	if w.Type == "" {
		w.Type = "duckdb"
	}
	if w.Type == "duckdb" && w.Path == "" {
		w.Path = DefaultWarehousePath
	}
	if w.Type == "postgres" {
		if w.Port == 0 {
			w.Port = 5432
		}
		if w.Schema == "" {
			w.Schema = "public"
		}
	}
}
