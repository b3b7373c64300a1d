package di

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"sync"

	"github.com/conneroisu/metaforge/internal/cache"
	"github.com/conneroisu/metaforge/internal/companion"
	"github.com/conneroisu/metaforge/internal/config"
	"github.com/conneroisu/metaforge/internal/extractor"
	"github.com/conneroisu/metaforge/internal/keys"
	"github.com/conneroisu/metaforge/internal/loader"
	"github.com/conneroisu/metaforge/internal/logging"
	"github.com/conneroisu/metaforge/internal/metadatacache"
	"github.com/conneroisu/metaforge/internal/store"
)

// dependencyResolver is a wrapper around ServiceContainer that prevents deadlocks
type dependencyResolver struct {
	container *ServiceContainer
	resolving map[string]bool
}

// Get retrieves a service using the safe resolver
func (dr *dependencyResolver) Get(name string) (interface{}, error) {
	return dr.container.getWithResolver(name, dr.resolving)
}

// GetByType retrieves a service by type using the safe resolver
func (dr *dependencyResolver) GetByType(serviceType reflect.Type) (interface{}, error) {
	dr.container.mu.RLock()
	var serviceName string
	found := false

	for _, definition := range dr.container.services {
		if definition.Type == serviceType {
			serviceName = definition.Name
			found = true
			break
		}
	}
	dr.container.mu.RUnlock()

	if found {
		return dr.Get(serviceName)
	}

	return nil, fmt.Errorf("no service found for type %s", serviceType.String())
}

// GetByTag retrieves all services with a specific tag using the safe resolver
func (dr *dependencyResolver) GetByTag(tag string) ([]interface{}, error) {
	dr.container.mu.RLock()
	var serviceNames []string

	for _, definition := range dr.container.services {
		for _, defTag := range definition.Tags {
			if defTag == tag {
				serviceNames = append(serviceNames, definition.Name)
				break
			}
		}
	}
	dr.container.mu.RUnlock()

	var services []interface{}
	for _, serviceName := range serviceNames {
		service, err := dr.Get(serviceName)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}

	return services, nil
}

// MustGet retrieves a service and panics if not found
func (dr *dependencyResolver) MustGet(name string) interface{} {
	instance, err := dr.Get(name)
	if err != nil {
		panic(fmt.Sprintf("failed to get service '%s': %v", name, err))
	}
	return instance
}

// ServiceContainer manages dependency injection for the application
type ServiceContainer struct {
	services    map[string]ServiceDefinition
	instances   map[string]interface{}
	singletons  map[string]interface{}
	factories   map[string]FactoryFunc
	creating    map[string]*sync.WaitGroup // Track services being created
	mu          sync.RWMutex
	config      *config.Config
	initialized bool
}

// ServiceDefinition defines how a service should be created and managed
type ServiceDefinition struct {
	Name         string
	Type         reflect.Type
	Factory      FactoryFunc
	Singleton    bool
	Dependencies []string
	Tags         []string
}

// FactoryFunc creates a service instance using the dependency resolver
type FactoryFunc func(resolver DependencyResolver) (interface{}, error)

// DependencyResolver provides safe dependency resolution that prevents circular dependencies
type DependencyResolver interface {
	Get(name string) (interface{}, error)
	GetByType(serviceType reflect.Type) (interface{}, error)
	GetByTag(tag string) ([]interface{}, error)
	MustGet(name string) interface{}
}

// ServiceBuilder helps build service definitions
type ServiceBuilder struct {
	definition ServiceDefinition
	container  *ServiceContainer
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config) *ServiceContainer {
	return &ServiceContainer{
		services:   make(map[string]ServiceDefinition),
		instances:  make(map[string]interface{}),
		singletons: make(map[string]interface{}),
		factories:  make(map[string]FactoryFunc),
		creating:   make(map[string]*sync.WaitGroup),
		config:     cfg,
	}
}

// Register registers a service with the container
func (c *ServiceContainer) Register(name string, factory FactoryFunc) *ServiceBuilder {
	c.mu.Lock()
	defer c.mu.Unlock()

	builder := &ServiceBuilder{
		definition: ServiceDefinition{
			Name:         name,
			Factory:      factory,
			Singleton:    false,
			Dependencies: make([]string, 0),
			Tags:         make([]string, 0),
		},
		container: c,
	}

	c.services[name] = builder.definition
	c.factories[name] = factory

	return builder
}

// RegisterSingleton registers a singleton service
func (c *ServiceContainer) RegisterSingleton(name string, factory FactoryFunc) *ServiceBuilder {
	builder := c.Register(name, factory)
	builder.definition.Singleton = true
	c.services[name] = builder.definition
	return builder
}

// RegisterInstance registers an existing instance as a singleton
func (c *ServiceContainer) RegisterInstance(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.singletons[name] = instance
	c.services[name] = ServiceDefinition{
		Name:      name,
		Type:      reflect.TypeOf(instance),
		Singleton: true,
	}
}

// Get retrieves a service from the container
func (c *ServiceContainer) Get(name string) (interface{}, error) {
	return c.getWithResolver(name, make(map[string]bool))
}

// getWithResolver retrieves a service with circular dependency detection
func (c *ServiceContainer) getWithResolver(
	name string,
	resolving map[string]bool,
) (interface{}, error) {
	// Check for circular dependencies
	if resolving[name] {
		return nil, fmt.Errorf("circular dependency detected for service '%s'", name)
	}

	// Check if service is registered
	c.mu.RLock()
	definition, exists := c.services[name]
	factory := c.factories[name]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("service '%s' not registered", name)
	}

	// For singletons, use creation coordination to avoid race conditions
	if definition.Singleton {
		// First check - read lock
		c.mu.RLock()
		if instance, exists := c.singletons[name]; exists {
			c.mu.RUnlock()
			return instance, nil
		}

		// Check if another goroutine is creating this singleton
		if wg, creating := c.creating[name]; creating {
			c.mu.RUnlock()
			// Wait for the other goroutine to finish creating
			wg.Wait()
			// Now get the created instance
			c.mu.RLock()
			instance := c.singletons[name]
			c.mu.RUnlock()
			return instance, nil
		}
		c.mu.RUnlock()

		// Second check with write lock - establish creation reservation
		c.mu.Lock()
		if instance, exists := c.singletons[name]; exists {
			c.mu.Unlock()
			return instance, nil
		}

		// Check again if another goroutine is creating this singleton
		if wg, creating := c.creating[name]; creating {
			c.mu.Unlock()
			wg.Wait()
			c.mu.RLock()
			instance := c.singletons[name]
			c.mu.RUnlock()
			return instance, nil
		}

		// Reserve creation - we will create this singleton
		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.creating[name] = wg

		// Mark as being resolved to prevent circular dependencies
		resolving[name] = true
		c.mu.Unlock()

		// Create the singleton instance without holding any locks
		instance, err := c.createInstanceSafely(factory, resolving)

		// Remove from resolving map after factory completes
		delete(resolving, name)

		// Store the created instance and notify waiters
		c.mu.Lock()
		if err != nil {
			// Creation failed - clean up and return error
			delete(c.creating, name)
			c.mu.Unlock()
			wg.Done()
			return nil, fmt.Errorf("failed to create singleton service '%s': %w", name, err)
		}

		c.singletons[name] = instance
		delete(c.creating, name)
		c.mu.Unlock()
		wg.Done()

		return instance, nil
	}

	// For transient services, just create a new instance
	resolving[name] = true
	instance, err := c.createInstanceSafely(factory, resolving)
	delete(resolving, name)

	if err != nil {
		return nil, fmt.Errorf("failed to create service '%s': %w", name, err)
	}

	return instance, nil
}

// createInstanceSafely creates an instance with dependency resolution
func (c *ServiceContainer) createInstanceSafely(
	factory FactoryFunc,
	resolving map[string]bool,
) (interface{}, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory is nil")
	}

	// Create a resolver container that can handle circular dependencies
	resolver := &dependencyResolver{
		container: c,
		resolving: resolving,
	}

	return factory(resolver)
}

// MustGet retrieves a service and panics if not found
func (c *ServiceContainer) MustGet(name string) interface{} {
	instance, err := c.Get(name)
	if err != nil {
		panic(fmt.Sprintf("failed to get service '%s': %v", name, err))
	}
	return instance
}

// GetRequired retrieves a service and panics if not found (interface compliance)
func (c *ServiceContainer) GetRequired(name string) interface{} {
	return c.MustGet(name)
}

// Has checks if a service is registered
func (c *ServiceContainer) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.services[name]
	return exists
}

// GetByType retrieves a service by its type
func (c *ServiceContainer) GetByType(serviceType reflect.Type) (interface{}, error) {
	c.mu.RLock()
	var serviceName string
	found := false

	for _, definition := range c.services {
		if definition.Type == serviceType {
			serviceName = definition.Name
			found = true
			break
		}
	}
	c.mu.RUnlock()

	if found {
		return c.Get(serviceName)
	}

	return nil, fmt.Errorf("no service found for type %s", serviceType.String())
}

// GetByTag retrieves all services with a specific tag
func (c *ServiceContainer) GetByTag(tag string) ([]interface{}, error) {
	c.mu.RLock()
	var serviceNames []string

	for _, definition := range c.services {
		for _, defTag := range definition.Tags {
			if defTag == tag {
				serviceNames = append(serviceNames, definition.Name)
				break
			}
		}
	}
	c.mu.RUnlock()

	var services []interface{}
	for _, serviceName := range serviceNames {
		service, err := c.Get(serviceName)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}

	return services, nil
}

// Initialize sets up all core services with their dependencies
func (c *ServiceContainer) Initialize() error {
	if c.initialized {
		return nil
	}

	// Register core services
	if err := c.registerCoreServices(); err != nil {
		return fmt.Errorf("failed to register core services: %w", err)
	}

	c.initialized = true
	return nil
}

// registerCoreServices registers the metadata engine's C1-C9 components in
// dependency order: the logger first; the extractor and artifact cache
// depend on the logger and the metadata cache on nothing; companion and the
// loader pool depend on the extractor and logger; the orchestrator depends on
// the components before it; the key simplifier, key registry and structured
// store are registered last.
func (c *ServiceContainer) registerCoreServices() error {
	c.RegisterSingleton("logger", func(resolver DependencyResolver) (interface{}, error) {
		return logging.Logger(logging.NewLogger(&logging.Config{
			Level:     logging.LevelInfo,
			Format:    "text",
			Output:    os.Stdout,
			AddSource: false,
		})), nil
	}).AsSingleton().WithTag("core")

	c.RegisterSingleton("extractor", func(resolver DependencyResolver) (interface{}, error) {
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		return extractor.New(extractor.Config{
			BinaryPath:   c.config.Extractor.BinaryPath,
			ExtendedFlag: c.config.Extractor.ExtendedFlag,
		}, log.(logging.Logger)), nil
	}).DependsOn("logger").WithTag("core")

	c.RegisterSingleton("metadataCache", func(resolver DependencyResolver) (interface{}, error) {
		return metadatacache.New(), nil
	}).WithTag("core")

	c.RegisterSingleton("artifactCache", func(resolver DependencyResolver) (interface{}, error) {
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		return cache.New(
			c.config.Cache.MaxEntries,
			c.config.Cache.CacheDir,
			c.config.Cache.DiskThresholdBytes,
			log.(logging.Logger),
		), nil
	}).DependsOn("logger").WithTag("core")

	c.RegisterSingleton("companion", func(resolver DependencyResolver) (interface{}, error) {
		extractorService, err := resolver.Get("extractor")
		if err != nil {
			return nil, err
		}
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		return companion.New(companion.Config{
			Enabled:    c.config.Companion.Enabled,
			Extensions: c.config.Companion.Extensions,
		}, extractorService.(*extractor.Client), log.(logging.Logger)), nil
	}).DependsOn("extractor", "logger").WithTag("core")

	c.RegisterSingleton("loaderPool", func(resolver DependencyResolver) (interface{}, error) {
		extractorService, err := resolver.Get("extractor")
		if err != nil {
			return nil, err
		}
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		workers := c.config.Loader.MaxWorkers
		if workers == 0 {
			workers = loader.WorkerCount(runtime.NumCPU())
		}
		return loader.New(extractorService.(*extractor.Client), workers, log.(logging.Logger)), nil
	}).DependsOn("extractor", "logger").WithTag("core")

	c.RegisterSingleton("orchestrator", func(resolver DependencyResolver) (interface{}, error) {
		cacheService, err := resolver.Get("metadataCache")
		if err != nil {
			return nil, err
		}
		companionService, err := resolver.Get("companion")
		if err != nil {
			return nil, err
		}
		extractorService, err := resolver.Get("extractor")
		if err != nil {
			return nil, err
		}
		poolService, err := resolver.Get("loaderPool")
		if err != nil {
			return nil, err
		}
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		return loader.NewOrchestrator(
			cacheService.(*metadatacache.Cache),
			companionService.(*companion.Handler),
			extractorService.(*extractor.Client),
			poolService.(*loader.Pool),
			log.(logging.Logger),
		), nil
	}).DependsOn("metadataCache", "companion", "extractor", "loaderPool", "logger").WithTag("core")

	c.RegisterSingleton("keySimplifier", func(resolver DependencyResolver) (interface{}, error) {
		return keys.New(keys.Config{
			MaxSegments:     c.config.Keys.MaxSegments,
			MinKeyLength:    c.config.Keys.MinKeyLength,
			PreserveNumbers: c.config.Keys.PreserveNumbers,
			PreserveDomain:  c.config.Keys.PreserveDomain,
			RemoveStopWords: c.config.Keys.RemoveStopWords,
		}), nil
	}).WithTag("core")

	c.RegisterSingleton("keyRegistry", func(resolver DependencyResolver) (interface{}, error) {
		log, err := resolver.Get("logger")
		if err != nil {
			return nil, err
		}
		registry := keys.NewRegistry(keys.RegistryConfig{MaxHistory: c.config.Keys.MaxHistory})
		aliasesStore := keys.NewAliasesStore(c.config.Keys.AliasesFile, log.(logging.Logger))
		aliases, err := aliasesStore.Load(context.Background(), true)
		if err != nil {
			log.(logging.Logger).Warn(context.Background(), err, "falling back to built-in semantic aliases", "path", c.config.Keys.AliasesFile)
			aliases = nil
		}
		registry.LoadSemanticAliases(aliases)
		return registry, nil
	}).DependsOn("logger").WithTag("core")

	c.RegisterSingleton("structuredStore", func(resolver DependencyResolver) (interface{}, error) {
		if c.config.Store.Driver == "" {
			return (*store.Store)(nil), nil
		}
		return store.Open(c.config.Store.Driver, c.config.Store.DSN)
	}).WithTag("core")

	return nil
}

// Shutdown gracefully shuts down all services
func (c *ServiceContainer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errors []error

	// Shutdown services in reverse dependency order
	shutdownOrder := []string{
		"orchestrator", "loaderPool", "companion", "extractor",
		"metadataCache", "artifactCache", "keySimplifier", "keyRegistry", "structuredStore",
	}

	for _, serviceName := range shutdownOrder {
		instance, exists := c.singletons[serviceName]
		if !exists || instance == nil {
			continue
		}
		if shutdownable, ok := instance.(interface{ Shutdown(context.Context) error }); ok {
			if err := shutdownable.Shutdown(ctx); err != nil {
				errors = append(errors, fmt.Errorf("failed to shutdown %s: %w", serviceName, err))
			}
			continue
		}
		if closable, ok := instance.(interface{ Close() error }); ok {
			if closable == (*store.Store)(nil) {
				continue
			}
			if err := closable.Close(); err != nil {
				errors = append(errors, fmt.Errorf("failed to close %s: %w", serviceName, err))
			}
		}
	}

	// Clear all instances
	c.singletons = make(map[string]interface{})
	c.instances = make(map[string]interface{})

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	return nil
}

// ServiceBuilder methods for fluent interface

// AsSingleton marks the service as a singleton
func (sb *ServiceBuilder) AsSingleton() *ServiceBuilder {
	sb.definition.Singleton = true
	sb.updateContainer()
	return sb
}

// DependsOn adds dependencies to the service
func (sb *ServiceBuilder) DependsOn(dependencies ...string) *ServiceBuilder {
	sb.definition.Dependencies = append(sb.definition.Dependencies, dependencies...)
	sb.updateContainer()
	return sb
}

// WithTag adds tags to the service
func (sb *ServiceBuilder) WithTag(tags ...string) *ServiceBuilder {
	sb.definition.Tags = append(sb.definition.Tags, tags...)
	sb.updateContainer()
	return sb
}

// WithType sets the service type
func (sb *ServiceBuilder) WithType(serviceType reflect.Type) *ServiceBuilder {
	sb.definition.Type = serviceType
	sb.updateContainer()
	return sb
}

// updateContainer updates the service definition in the container
func (sb *ServiceBuilder) updateContainer() {
	sb.container.mu.Lock()
	sb.container.services[sb.definition.Name] = sb.definition
	sb.container.mu.Unlock()
}

// Convenience methods for typed service retrieval

// GetOrchestrator retrieves the loading orchestrator.
func (c *ServiceContainer) GetOrchestrator() (*loader.Orchestrator, error) {
	service, err := c.Get("orchestrator")
	if err != nil {
		return nil, err
	}
	return service.(*loader.Orchestrator), nil
}

// GetLoaderPool retrieves the bounded extraction worker pool.
func (c *ServiceContainer) GetLoaderPool() (*loader.Pool, error) {
	service, err := c.Get("loaderPool")
	if err != nil {
		return nil, err
	}
	return service.(*loader.Pool), nil
}

// GetMetadataCache retrieves the in-process metadata cache.
func (c *ServiceContainer) GetMetadataCache() (*metadatacache.Cache, error) {
	service, err := c.Get("metadataCache")
	if err != nil {
		return nil, err
	}
	return service.(*metadatacache.Cache), nil
}

// GetArtifactCache retrieves the two-tier LRU/disk artifact cache.
func (c *ServiceContainer) GetArtifactCache() (*cache.Cache, error) {
	service, err := c.Get("artifactCache")
	if err != nil {
		return nil, err
	}
	return service.(*cache.Cache), nil
}

// GetCompanion retrieves the sidecar companion handler.
func (c *ServiceContainer) GetCompanion() (*companion.Handler, error) {
	service, err := c.Get("companion")
	if err != nil {
		return nil, err
	}
	return service.(*companion.Handler), nil
}

// GetExtractor retrieves the metadata extraction client.
func (c *ServiceContainer) GetExtractor() (*extractor.Client, error) {
	service, err := c.Get("extractor")
	if err != nil {
		return nil, err
	}
	return service.(*extractor.Client), nil
}

// GetKeySimplifier retrieves the key simplification engine.
func (c *ServiceContainer) GetKeySimplifier() (*keys.Simplifier, error) {
	service, err := c.Get("keySimplifier")
	if err != nil {
		return nil, err
	}
	return service.(*keys.Simplifier), nil
}

// GetKeyRegistry retrieves the key mapping registry.
func (c *ServiceContainer) GetKeyRegistry() (*keys.Registry, error) {
	service, err := c.Get("keyRegistry")
	if err != nil {
		return nil, err
	}
	return service.(*keys.Registry), nil
}

// GetConfig returns the configuration the container was built from.
func (c *ServiceContainer) GetConfig() *config.Config {
	return c.config
}

// GetStructuredStore retrieves the structured store, or nil if the engine
// was configured without a backing database.
func (c *ServiceContainer) GetStructuredStore() (*store.Store, error) {
	service, err := c.Get("structuredStore")
	if err != nil {
		return nil, err
	}
	return service.(*store.Store), nil
}

// ListServices returns a list of all registered service names
func (c *ServiceContainer) ListServices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	services := make([]string, 0, len(c.services))
	for name := range c.services {
		services = append(services, name)
	}
	return services
}

// GetServiceDefinition returns the definition for a service
func (c *ServiceContainer) GetServiceDefinition(name string) (ServiceDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	definition, exists := c.services[name]
	return definition, exists
}
