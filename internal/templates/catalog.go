// Package templates supplies the diagram templates served by
// get_diagram_templates: a built-in catalog, YAML catalog files and a
// watcher that reloads those files into a template store.
package templates

import (
	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/storage"
)

// Categories used by the built-in catalog.
const (
	CategoryProcess  = "process"
	CategorySoftware = "software"
	CategoryData     = "data"
	CategoryPlanning = "planning"
)

// Builtin returns the templates compiled into the binary, ordered by ID.
// The returned slice is a fresh copy.
func Builtin() []storage.Template {
	out := make([]storage.Template, len(builtin))
	for i, t := range builtin {
		t.Tags = append([]string(nil), t.Tags...)
		t.Source = storage.SourceBuiltin
		out[i] = t
	}
	return out
}

var builtin = []storage.Template{
	{
		ID:          "class-domain-model",
		Name:        "Domain Model",
		Description: "Classes with attributes, methods and inheritance for an object model",
		DiagramType: diagram.Class,
		Category:    CategorySoftware,
		Tags:        []string{"uml", "oop", "model", "inheritance"},
		Code: `classDiagram
    class Account {
        +String owner
        +Decimal balance
        +deposit(amount) bool
        +withdraw(amount) bool
    }
    class SavingsAccount {
        +Decimal rate
        +addInterest()
    }
    class Customer {
        +String name
        +open() Account
    }
    Account <|-- SavingsAccount
    Customer "1" --> "*" Account : owns`,
	},
	{
		ID:          "er-orders",
		Name:        "Order Schema",
		Description: "Entity relationship model for customers, orders and line items",
		DiagramType: diagram.ER,
		Category:    CategoryData,
		Tags:        []string{"database", "schema", "entity", "relational"},
		Code: `erDiagram
    CUSTOMER ||--o{ ORDER : places
    ORDER ||--|{ LINE_ITEM : contains
    PRODUCT ||--o{ LINE_ITEM : "ordered in"
    CUSTOMER {
        string id PK
        string name
        string email
    }
    ORDER {
        string id PK
        string customer_id FK
        date created
    }`,
	},
	{
		ID:          "flowchart-approval",
		Name:        "Approval Workflow",
		Description: "Request review loop with a decision and rework path",
		DiagramType: diagram.Flowchart,
		Category:    CategoryProcess,
		Tags:        []string{"workflow", "decision", "review", "business"},
		Code: `flowchart TD
    Submit[Submit request] --> Review{Approved?}
    Review -->|yes| Notify[Notify requester]
    Review -->|no| Rework[Revise request]
    Rework --> Submit
    Notify --> Archive[(Archive)]`,
	},
	{
		ID:          "flowchart-basic",
		Name:        "Basic Flowchart",
		Description: "Linear process from start to finish",
		DiagramType: diagram.Flowchart,
		Category:    CategoryProcess,
		Tags:        []string{"process", "steps", "simple"},
		Code: `flowchart TD
    Start([Start]) --> Prepare[Prepare input]
    Prepare --> Process[Process data]
    Process --> Finish([Finish])`,
	},
	{
		ID:          "flowchart-architecture",
		Name:        "Service Architecture",
		Description: "Client, gateway and backend services grouped into tiers",
		DiagramType: diagram.Flowchart,
		Category:    CategorySoftware,
		Tags:        []string{"architecture", "microservices", "system", "subgraph"},
		Code: `flowchart LR
    Client[Web client] --> Gateway[API gateway]
    subgraph Services
        Gateway --> Users[User service]
        Gateway --> Orders[Order service]
    end
    subgraph Storage
        UsersDB[(Users DB)]
        OrdersDB[(Orders DB)]
    end
    Users --> UsersDB
    Orders --> OrdersDB`,
	},
	{
		ID:          "gantt-project",
		Name:        "Project Plan",
		Description: "Phased project schedule with dependent tasks",
		DiagramType: diagram.Gantt,
		Category:    CategoryPlanning,
		Tags:        []string{"schedule", "timeline", "project", "roadmap"},
		Code: `gantt
    title Project Plan
    dateFormat YYYY-MM-DD
    section Design
    Requirements :req, 2024-01-01, 5d
    Architecture :arch, after req, 5d
    section Build
    Implementation :impl, after arch, 15d
    Testing :test, after impl, 5d`,
	},
	{
		ID:          "gitgraph-feature",
		Name:        "Feature Branch",
		Description: "Feature branch merged back into main",
		DiagramType: diagram.GitGraph,
		Category:    CategorySoftware,
		Tags:        []string{"git", "branching", "version control"},
		Code: `gitGraph
    commit id: "init"
    branch feature
    checkout feature
    commit id: "work"
    checkout main
    merge feature
    commit id: "release"`,
	},
	{
		ID:          "journey-checkout",
		Name:        "Checkout Journey",
		Description: "Customer experience through an online checkout",
		DiagramType: diagram.Journey,
		Category:    CategoryProcess,
		Tags:        []string{"ux", "customer", "experience"},
		Code: `journey
    title Online checkout
    section Browse
      Find product: 4: Customer
      Add to cart: 5: Customer
    section Pay
      Enter details: 2: Customer
      Confirm order: 4: Customer, Shop`,
	},
	{
		ID:          "mindmap-brainstorm",
		Name:        "Brainstorm",
		Description: "Central topic with branching ideas",
		DiagramType: diagram.Mindmap,
		Category:    CategoryPlanning,
		Tags:        []string{"ideas", "brainstorming", "hierarchy"},
		Code: `mindmap
  root((Product launch))
    Marketing
      Blog post
      Newsletter
    Engineering
      Release build
      Monitoring
    Support
      FAQ`,
	},
	{
		ID:          "pie-distribution",
		Name:        "Distribution",
		Description: "Share of a whole split into slices",
		DiagramType: diagram.Pie,
		Category:    CategoryData,
		Tags:        []string{"chart", "percentage", "breakdown"},
		Code: `pie title Traffic sources
    "Search" : 45
    "Direct" : 30
    "Social" : 15
    "Referral" : 10`,
	},
	{
		ID:          "sequence-api",
		Name:        "API Request",
		Description: "Client request through a service to a database and back",
		DiagramType: diagram.Sequence,
		Category:    CategorySoftware,
		Tags:        []string{"api", "http", "interaction", "request"},
		Code: `sequenceDiagram
    participant Client
    participant API
    participant DB
    Client->>API: GET /orders
    API->>DB: SELECT orders
    DB-->>API: rows
    API-->>Client: 200 OK`,
	},
	{
		ID:          "sequence-login",
		Name:        "Login Flow",
		Description: "Authentication with success and failure branches",
		DiagramType: diagram.Sequence,
		Category:    CategorySoftware,
		Tags:        []string{"auth", "login", "security", "alt"},
		Code: `sequenceDiagram
    actor User
    participant App
    participant Auth
    User->>App: Enter credentials
    App->>Auth: Verify
    alt valid
        Auth-->>App: Token
        App-->>User: Welcome
    else invalid
        Auth-->>App: Rejected
        App-->>User: Try again
    end`,
	},
	{
		ID:          "state-order",
		Name:        "Order Lifecycle",
		Description: "States an order moves through from creation to delivery",
		DiagramType: diagram.State,
		Category:    CategoryProcess,
		Tags:        []string{"state machine", "lifecycle", "status"},
		Code: `stateDiagram-v2
    [*] --> Created
    Created --> Paid : payment
    Paid --> Shipped : dispatch
    Shipped --> Delivered
    Created --> Cancelled : timeout
    Delivered --> [*]
    Cancelled --> [*]`,
	},
	{
		ID:          "timeline-history",
		Name:        "Release History",
		Description: "Milestones grouped by period",
		DiagramType: diagram.Timeline,
		Category:    CategoryPlanning,
		Tags:        []string{"history", "milestones", "releases"},
		Code: `timeline
    title Release history
    2022 : Prototype
    2023 : Beta : Public API
    2024 : General availability`,
	},
}
