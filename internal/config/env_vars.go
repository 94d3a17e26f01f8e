package config

type EnvVars struct {
	Port       string `yaml:"port" env:"PORT" env-default:"8080"`
	AppName    string `yaml:"app_name" env:"APP_NAME" env-default:"Connection Hub"`
	DataFolder string `yaml:"data_folder" env:"FOLDER" env-default:"./data"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Env        string `yaml:"env" env:"ENV" env-default:"DEV"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	return e.Port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) IsProd() bool {
	return e.Env == "PROD"
}
