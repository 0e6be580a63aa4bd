package clients

import "context"

const aamService = "aam"

// AAMClient queries the authentication and authorization manager. Requests
// are made with the administrator credentials it was created with.
type AAMClient struct {
	caller Caller
	routes AAMRoutes
	admin  Credentials
	opts   options
}

// NewAAMClient creates an AAM client
func NewAAMClient(caller Caller, routes AAMRoutes, admin Credentials, opts ...Option) *AAMClient {
	return &AAMClient{caller: caller, routes: routes, admin: admin, opts: newOptions(opts)}
}

// Login checks user's credentials and returns the account details
func (c *AAMClient) Login(ctx context.Context, user Credentials) (*UserDetailsResponse, error) {
	return c.UserDetails(ctx, user, OperationRead)
}

// ForceRead returns the details of username without checking a password
func (c *AAMClient) ForceRead(ctx context.Context, username string) (*UserDetailsResponse, error) {
	return c.UserDetails(ctx, Credentials{Username: username}, OperationForceRead)
}

// UserDetails sends a user details request of the given operation type
func (c *AAMClient) UserDetails(ctx context.Context, user Credentials, op OperationType) (*UserDetailsResponse, error) {
	req := UserManagementRequest{
		AdministratorCredentials: c.admin,
		UserCredentials:          user,
		UserDetails: UserDetails{
			Credentials: user,
			Role:        RoleNull,
			Status:      AccountActive,
			Attributes:  map[string]string{},
			Clients:     map[string]string{},

			ServiceConsent:              true,
			AnalyticsAndResearchConsent: true,
		},
		OperationType: op,
	}

	var resp UserDetailsResponse
	if err := c.call(ctx, c.routes.UserDetails, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OwnedServices lists the services owned by the user named in req
func (c *AAMClient) OwnedServices(ctx context.Context, req UserManagementRequest) ([]OwnedService, error) {
	var services []OwnedService
	if err := c.call(ctx, c.routes.OwnedServices, req, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// ManageUser creates, updates or deletes the account described by req and
// returns the AAM's verdict. Missing administrator credentials are filled in.
func (c *AAMClient) ManageUser(ctx context.Context, req UserManagementRequest) (ManagementStatus, error) {
	if req.AdministratorCredentials == (Credentials{}) {
		req.AdministratorCredentials = c.admin
	}
	c.opts.logger.Debug("sending user management request", "username", req.UserCredentials.Username, "operation", req.OperationType)

	var status ManagementStatus
	if err := c.call(ctx, c.routes.ManageUser, req, &status); err != nil {
		return "", err
	}
	return status, nil
}

// Revoke revokes the certificate or tokens named in req
func (c *AAMClient) Revoke(ctx context.Context, req RevocationRequest) (*RevocationResponse, error) {
	var resp RevocationResponse
	if err := c.call(ctx, c.routes.Revocation, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ManagePlatform registers, updates or deletes a platform. Missing AAM owner
// credentials are filled in with the administrator's.
func (c *AAMClient) ManagePlatform(ctx context.Context, req PlatformManagementRequest) (*PlatformManagementResponse, error) {
	if req.AAMOwnerCredentials == (Credentials{}) {
		req.AAMOwnerCredentials = c.admin
	}
	c.opts.logger.Debug("sending platform management request", "platformId", req.InstanceID, "operation", req.OperationType)

	var resp PlatformManagementResponse
	if err := c.call(ctx, c.routes.ManagePlatform, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ManageSmartSpace registers, updates or deletes a smart space. Missing AAM
// owner credentials are filled in with the administrator's.
func (c *AAMClient) ManageSmartSpace(ctx context.Context, req SmartSpaceManagementRequest) (*SmartSpaceManagementResponse, error) {
	if req.AAMOwnerCredentials == (Credentials{}) {
		req.AAMOwnerCredentials = c.admin
	}
	c.opts.logger.Debug("sending smart space management request", "sspId", req.InstanceID, "operation", req.OperationType)

	var resp SmartSpaceManagementResponse
	if err := c.call(ctx, c.routes.ManageSmartSpace, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call is callJSON reading error containers, which every AAM route may send
func (c *AAMClient) call(ctx context.Context, route Route, in, out any) error {
	return callJSON(ctx, c.caller, aamService, route, in, out, true, c.opts)
}
