package auth

// Service bundles the auth operations built from one Config.
type Service struct {
	Config     Config
	Repo       RepositoryManager
	Tokens     TokenService
	Auther     *Auther
	HTTP       *RouteAuthenticator
	Links      Links
	Register   *RegisterUserHandler
	Invite     *CreateInviteHandler
	Signup     *InvitedSignupHandler
	ConfirmPin *ConfirmPinHandler
	Profile    *UpdateProfileHandler
	Logger     Logger
}

type serviceOptions struct {
	notifier  Notifier
	storage   AvatarStorage
	logger    Logger
	passwords PasswordAuthenticator
	renderer  InviteRenderer
	activity  ActivitySink
}

type ServiceOption func(*serviceOptions)

func WithNotifier(n Notifier) ServiceOption {
	return func(o *serviceOptions) { o.notifier = n }
}

func WithAvatarStorage(s AvatarStorage) ServiceOption {
	return func(o *serviceOptions) { o.storage = s }
}

func WithServiceLogger(l Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

func WithPasswordHasher(p PasswordAuthenticator) ServiceOption {
	return func(o *serviceOptions) { o.passwords = p }
}

func WithInviteRenderer(r InviteRenderer) ServiceOption {
	return func(o *serviceOptions) { o.renderer = r }
}

func WithServiceActivitySink(s ActivitySink) ServiceOption {
	return func(o *serviceOptions) { o.activity = s }
}

// NewService wires the authenticator, the command handlers and the route
// guard.
func NewService(cfg Config, repo RepositoryManager, tokens TokenService, opts ...ServiceOption) *Service {
	o := &serviceOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.passwords == nil {
		o.passwords = DefaultPasswordAuthenticator()
	}

	handlerOpts := []HandlerOption{
		WithHandlerLogger(o.logger),
		WithHandlerTimeout(cfg.GetOperationTimeout()),
		WithHandlerPasswords(o.passwords),
		WithActivitySink(o.activity),
	}

	links := NewLinks(cfg.GetBaseURL())

	auther := NewAuthenticator(repo, tokens).
		WithLogger(o.logger).
		WithPasswordAuthenticator(o.passwords).
		WithRequireConfirmation(cfg.GetRequireConfirmation()).
		WithActivitySink(o.activity)

	routes := NewHTTPAuthenticator(tokens, cfg)
	routes.Logger = o.logger

	return &Service{
		Config:     cfg,
		Repo:       repo,
		Tokens:     tokens,
		Auther:     auther,
		HTTP:       routes,
		Links:      links,
		Register:   NewRegisterUserHandler(repo, cfg.GetOpenRegistration(), append(handlerOpts, WithDeterministicIDs(cfg.GetDeterministicIDs()))...),
		Invite:     NewCreateInviteHandler(repo, o.notifier, links, handlerOpts...).WithRenderer(o.renderer),
		Signup:     NewInvitedSignupHandler(repo, links, handlerOpts...),
		ConfirmPin: NewConfirmPinHandler(repo, handlerOpts...),
		Profile:    NewUpdateProfileHandler(repo, o.storage, handlerOpts...),
		Logger:     o.logger,
	}
}
