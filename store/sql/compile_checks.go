package sqlstore

import "github.com/goliatone/go-connections/core"

var (
	_ core.UserStore              = (*UserStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.HubStore               = (*HubStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
