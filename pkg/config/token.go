package config

type TokenConf struct {
	AccessTokenExpiryHour int
	AccessTokenSecret     string
}

func NewTokenConf() *TokenConf {
	secret := GetConfig().Auth.AccessTokenSecret
	return &TokenConf{
		AccessTokenExpiryHour: 12,
		AccessTokenSecret:     secret,
	}
}
