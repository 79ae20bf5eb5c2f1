package config

const redacted = "***"

// RedactedConfig copies cfg with every credential masked, for the startup
// log line. Unset secrets stay empty so the log still shows what is missing.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	for _, s := range []*string{
		&out.Wallet.PrivateKey, &out.Wallet.KeyPassword,
		&out.Wallet.APIKey, &out.Wallet.APISecret, &out.Wallet.APIPassphrase,
		&out.Postgres.DSN, &out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey, &out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken, &out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Notify.Events = cloneStrings(cfg.Notify.Events)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
