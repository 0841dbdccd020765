package root

import (
	"github.com/craftdesk-io/craftdesk-saas/apps/cli/cmd/bootstrap"
	"github.com/craftdesk-io/craftdesk-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenant.Command())
}
