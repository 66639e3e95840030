package domain

type BootstrapData struct {
	AdminUsername string
	AdminPassword string
	UserUsername  string
	UserPassword  string
}
