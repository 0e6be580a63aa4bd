package clients

import "context"

const registryService = "registry"

// RegistryClient talks to the core registry: platforms, smart spaces,
// information models, mappings and platform resources
type RegistryClient struct {
	caller Caller
	routes RegistryRoutes
	opts   options
}

// NewRegistryClient creates a registry client
func NewRegistryClient(caller Caller, routes RegistryRoutes, opts ...Option) *RegistryClient {
	return &RegistryClient{caller: caller, routes: routes, opts: newOptions(opts)}
}

// CreatePlatform asks the registry to register platform
func (c *RegistryClient) CreatePlatform(ctx context.Context, platform Platform) (*PlatformRegistryResponse, error) {
	return c.sendPlatform(ctx, c.routes.Create, platform)
}

// RemovePlatform asks the registry to remove platform
func (c *RegistryClient) RemovePlatform(ctx context.Context, platform Platform) (*PlatformRegistryResponse, error) {
	return c.sendPlatform(ctx, c.routes.Remove, platform)
}

// ModifyPlatform asks the registry to update platform
func (c *RegistryClient) ModifyPlatform(ctx context.Context, platform Platform) (*PlatformRegistryResponse, error) {
	return c.sendPlatform(ctx, c.routes.Modify, platform)
}

// PlatformDetails fetches a registered platform. The id is sent as plain text.
func (c *RegistryClient) PlatformDetails(ctx context.Context, platformID string) (*PlatformRegistryResponse, error) {
	var resp PlatformRegistryResponse
	if err := callText(ctx, c.caller, registryService, c.routes.Details, platformID, &resp, false, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSmartSpace asks the registry to register ssp
func (c *RegistryClient) CreateSmartSpace(ctx context.Context, ssp SmartSpace) (*SmartSpaceRegistryResponse, error) {
	return c.sendSmartSpace(ctx, c.routes.SmartSpace.Create, ssp)
}

// RemoveSmartSpace asks the registry to remove ssp
func (c *RegistryClient) RemoveSmartSpace(ctx context.Context, ssp SmartSpace) (*SmartSpaceRegistryResponse, error) {
	return c.sendSmartSpace(ctx, c.routes.SmartSpace.Remove, ssp)
}

// ModifySmartSpace asks the registry to update ssp
func (c *RegistryClient) ModifySmartSpace(ctx context.Context, ssp SmartSpace) (*SmartSpaceRegistryResponse, error) {
	return c.sendSmartSpace(ctx, c.routes.SmartSpace.Modify, ssp)
}

// SmartSpaceDetails fetches a registered smart space by id
func (c *RegistryClient) SmartSpaceDetails(ctx context.Context, sspID string) (*SmartSpaceRegistryResponse, error) {
	var resp SmartSpaceRegistryResponse
	if err := callText(ctx, c.caller, registryService, c.routes.SmartSpace.Details, sspID, &resp, false, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InformationModels lists the registered information models without their
// RDF
func (c *RegistryClient) InformationModels(ctx context.Context) (*InformationModelListResponse, error) {
	var resp InformationModelListResponse
	if err := callText(ctx, c.caller, registryService, c.routes.InformationModel.List, "false", &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterInformationModel asks the registry to store the model in req
func (c *RegistryClient) RegisterInformationModel(ctx context.Context, req InformationModelRequest) (*InformationModelResponse, error) {
	return c.sendInformationModel(ctx, c.routes.InformationModel.Register, req)
}

// DeleteInformationModel asks the registry to drop the model in req
func (c *RegistryClient) DeleteInformationModel(ctx context.Context, req InformationModelRequest) (*InformationModelResponse, error) {
	return c.sendInformationModel(ctx, c.routes.InformationModel.Delete, req)
}

// Mappings lists the registered mappings
func (c *RegistryClient) Mappings(ctx context.Context, req GetAllMappings) (*MappingListResponse, error) {
	var resp MappingListResponse
	if err := callJSON(ctx, c.caller, registryService, c.routes.Mapping.List, req, &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Mapping fetches one mapping. The reply lists at most one entry.
func (c *RegistryClient) Mapping(ctx context.Context, req GetSingleMapping) (*MappingListResponse, error) {
	var resp MappingListResponse
	if err := callJSON(ctx, c.caller, registryService, c.routes.Mapping.Single, req, &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterMapping asks the registry to store the mapping in req
func (c *RegistryClient) RegisterMapping(ctx context.Context, req InfoModelMappingRequest) (*InfoModelMappingResponse, error) {
	return c.sendMapping(ctx, c.routes.Mapping.Register, req)
}

// DeleteMapping asks the registry to drop the mapping in req
func (c *RegistryClient) DeleteMapping(ctx context.Context, req InfoModelMappingRequest) (*InfoModelMappingResponse, error) {
	return c.sendMapping(ctx, c.routes.Mapping.Delete, req)
}

// Resources lists the resources a platform registered
func (c *RegistryClient) Resources(ctx context.Context, req CoreResourceRegistryRequest) (*ResourceListResponse, error) {
	var resp ResourceListResponse
	if err := callJSON(ctx, c.caller, registryService, c.routes.Resources, req, &resp, false, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearData removes every resource of the platform named in req
func (c *RegistryClient) ClearData(ctx context.Context, req ClearDataRequest) (*ClearDataResponse, error) {
	c.opts.logger.Debug("sending clear data request", "platformId", req.PlatformID)

	var resp ClearDataResponse
	if err := callJSON(ctx, c.caller, registryService, c.routes.ClearData, req, &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RegistryClient) sendPlatform(ctx context.Context, route Route, platform Platform) (*PlatformRegistryResponse, error) {
	c.opts.logger.Debug("sending platform request", "routingKey", route.RoutingKey, "platformId", platform.ID)

	var resp PlatformRegistryResponse
	if err := callJSON(ctx, c.caller, registryService, route, platform, &resp, false, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RegistryClient) sendSmartSpace(ctx context.Context, route Route, ssp SmartSpace) (*SmartSpaceRegistryResponse, error) {
	c.opts.logger.Debug("sending smart space request", "routingKey", route.RoutingKey, "sspId", ssp.ID)

	var resp SmartSpaceRegistryResponse
	if err := callJSON(ctx, c.caller, registryService, route, ssp, &resp, false, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RegistryClient) sendInformationModel(ctx context.Context, route Route, req InformationModelRequest) (*InformationModelResponse, error) {
	var resp InformationModelResponse
	if err := callJSON(ctx, c.caller, registryService, route, req, &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *RegistryClient) sendMapping(ctx context.Context, route Route, req InfoModelMappingRequest) (*InfoModelMappingResponse, error) {
	var resp InfoModelMappingResponse
	if err := callJSON(ctx, c.caller, registryService, route, req, &resp, true, c.opts); err != nil {
		return nil, err
	}
	return &resp, nil
}
