package automations

import (
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// RegisterType creates a new metatable in the Lua state and associates it with a name.
// It registers a set of functions as methods for the type and a `__tostring` metamethod.
// This is a generic helper for exposing Go types to Lua.
func RegisterType(l *lua.State, name string, functions map[string]lua.Function, toString func(l *lua.State) int) {
	lua.NewMetaTable(l, name)
	l.PushGoFunction(FunctionIndex(functions))
	l.SetField(-2, "__index")
	l.PushGoFunction(toString)
	l.SetField(-2, "__tostring")
	l.Pop(1)
}

// FunctionIndex returns a Lua function that acts as an `__index` metamethod.
// It looks up a field name in the provided functions map and pushes the corresponding
// function onto the stack if found.
func FunctionIndex(functions map[string]lua.Function) func(l *lua.State) int {
	return func(l *lua.State) int {
		field := lua.CheckString(l, 2)
		if function, ok := functions[field]; ok {
			l.PushGoFunction(function)
		} else {
			l.PushNil()
		}
		return 1
	}
}

// pushOptionalNumber pushes a float pointer as a number, or nil when unset.
func pushOptionalNumber(l *lua.State, value *float64) int {
	if value == nil {
		l.PushNil()
		return 1
	}
	l.PushNumber(*value)
	return 1
}

// pushOptionalID pushes a UUID pointer as a string, or nil when unset.
func pushOptionalID(l *lua.State, id *uuid.UUID) int {
	if id == nil {
		l.PushNil()
		return 1
	}
	l.PushString(id.String())
	return 1
}

// RegisterLeadType registers the `domain.Lead` type and its getters with the
// Lua state so hook arguments can be inspected from scripts.
func RegisterLeadType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// id returns the lead's UUID as a string.
		"id": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.ID.String())
			return 1
		},
		// name returns the lead's display name.
		"name": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(leadName(lead))
			return 1
		},
		// email returns the lead's contact email.
		"email": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.Email)
			return 1
		},
		// phone returns the lead's contact phone number.
		"phone": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.Phone)
			return 1
		},
		// source returns the acquisition source.
		"source": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.Source)
			return 1
		},
		// message returns the free-form message left by the contact.
		"message": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.Message)
			return 1
		},
		// budget returns the stated budget in euros, or nil when unknown.
		"budget": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			return pushOptionalNumber(l, lead.Budget)
		},
		// property_type returns the sought property type.
		"property_type": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.PropertyType)
			return 1
		},
		// locations returns the sought locations as a list.
		"locations": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			util.DeepPush(l, lead.Locations)
			return 1
		},
		// score returns the qualification score, 0 to 100.
		"score": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushNumber(float64(lead.Score))
			return 1
		},
		// status returns the lead's funnel status.
		"status": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushString(lead.Status)
			return 1
		},
		// assigned_to returns the working agent's UUID, or nil.
		"assigned_to": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			return pushOptionalID(l, lead.AssignedTo)
		},
		// is_open reports whether the lead is still in the active funnel.
		"is_open": func(l *lua.State) int {
			lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
			l.PushBoolean(lead.IsOpen())
			return 1
		},
	}

	RegisterType(runtime.LuaState, "lead", funcs, func(l *lua.State) int {
		lead := lua.CheckUserData(l, 1, "lead").(*domain.Lead)
		l.PushString(fmt.Sprintf("lead(%s, score %d)", lead.Email, lead.Score))
		return 1
	})
}

func leadName(lead *domain.Lead) string {
	switch {
	case lead.FirstName == "" && lead.LastName == "":
		return lead.Email
	case lead.FirstName == "":
		return lead.LastName
	case lead.LastName == "":
		return lead.FirstName
	default:
		return lead.FirstName + " " + lead.LastName
	}
}

// RegisterPropertyType registers the `domain.Property` type and its getters
// with the Lua state.
func RegisterPropertyType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// id returns the listing's UUID as a string.
		"id": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.ID.String())
			return 1
		},
		// reference returns the agency-scoped reference.
		"reference": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.Reference)
			return 1
		},
		// title returns the listing title.
		"title": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.Title)
			return 1
		},
		// kind returns the property type (apartment, house, ...).
		"kind": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.Type)
			return 1
		},
		// status returns the listing status.
		"status": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.Status)
			return 1
		},
		// price returns the asking price or monthly rent in euros.
		"price": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushNumber(property.Price.InexactFloat64())
			return 1
		},
		// surface returns the living surface in square meters.
		"surface": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushNumber(property.Surface)
			return 1
		},
		// rooms returns the room count.
		"rooms": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushNumber(float64(property.Rooms))
			return 1
		},
		// city returns the listing city.
		"city": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.City)
			return 1
		},
		// postal_code returns the listing postal code.
		"postal_code": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushString(property.PostalCode)
			return 1
		},
		// price_per_sqm returns the price divided by the surface.
		"price_per_sqm": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushNumber(property.PricePerSqm().InexactFloat64())
			return 1
		},
		// latitude returns the geocoded latitude, or nil before geocoding.
		"latitude": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			return pushOptionalNumber(l, property.Latitude)
		},
		// longitude returns the geocoded longitude, or nil before geocoding.
		"longitude": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			return pushOptionalNumber(l, property.Longitude)
		},
		// is_published reports whether the listing ever went live.
		"is_published": func(l *lua.State) int {
			property := lua.CheckUserData(l, 1, "property").(*domain.Property)
			l.PushBoolean(property.PublishedAt != nil)
			return 1
		},
	}

	RegisterType(runtime.LuaState, "property", funcs, func(l *lua.State) int {
		property := lua.CheckUserData(l, 1, "property").(*domain.Property)
		l.PushString(fmt.Sprintf("property(%s, %s)", property.Reference, property.City))
		return 1
	})
}

// RegisterClientType registers the `domain.ClientProfile` type and its
// getters with the Lua state.
func RegisterClientType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// user_id returns the UUID of the user the profile belongs to.
		"user_id": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			l.PushString(client.UserID.String())
			return 1
		},
		// status returns the client's pipeline status.
		"status": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			l.PushString(client.Status)
			return 1
		},
		// priority returns the client's priority label.
		"priority": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			l.PushString(client.Priority)
			return 1
		},
		// budget_min returns the lower budget bound in euros, or nil.
		"budget_min": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			return pushOptionalNumber(l, client.BudgetMin)
		},
		// budget_max returns the upper budget bound in euros, or nil.
		"budget_max": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			return pushOptionalNumber(l, client.BudgetMax)
		},
		// property_type returns the sought property type.
		"property_type": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			l.PushString(client.PropertyType)
			return 1
		},
		// locations returns the preferred cities or sectors as a list.
		"locations": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			util.DeepPush(l, client.Locations)
			return 1
		},
		// tags returns the segmentation labels as a list.
		"tags": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			util.DeepPush(l, client.Tags)
			return 1
		},
		// financing returns the client's financing status.
		"financing": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			l.PushString(client.Financing)
			return 1
		},
		// assigned_agent returns the managing agent's UUID, or nil.
		"assigned_agent": func(l *lua.State) int {
			client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
			return pushOptionalID(l, client.AssignedAgent)
		},
	}

	RegisterType(runtime.LuaState, "client", funcs, func(l *lua.State) int {
		client := lua.CheckUserData(l, 1, "client").(*domain.ClientProfile)
		l.PushString(fmt.Sprintf("client(%s, %s)", client.UserID, client.Status))
		return 1
	})
}

// RegisterReservationType registers the `domain.Reservation` type and its
// getters with the Lua state.
func RegisterReservationType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// id returns the reservation's UUID as a string.
		"id": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.ID.String())
			return 1
		},
		// property_id returns the UUID of the reserved property.
		"property_id": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.PropertyID.String())
			return 1
		},
		// client_id returns the UUID of the booking client.
		"client_id": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.ClientID.String())
			return 1
		},
		// agent_id returns the UUID of the hosting agent.
		"agent_id": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.AgentID.String())
			return 1
		},
		// kind returns the reservation kind (visit, signing, ...).
		"kind": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.Kind)
			return 1
		},
		// status returns the reservation status.
		"status": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushString(reservation.Status)
			return 1
		},
		// scheduled_at returns the slot start as a Unix timestamp in milliseconds.
		"scheduled_at": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushNumber(float64(reservation.ScheduledAt.UnixMilli()))
			return 1
		},
		// ends_at returns the slot end as a Unix timestamp in milliseconds.
		"ends_at": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushNumber(float64(reservation.EndsAt().UnixMilli()))
			return 1
		},
		// minutes returns the slot duration in minutes.
		"minutes": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushNumber(float64(reservation.Minutes))
			return 1
		},
		// participants returns the number of attendees.
		"participants": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			l.PushNumber(float64(reservation.Participants))
			return 1
		},
		// deposit returns the required deposit in euros, or nil when none.
		"deposit": func(l *lua.State) int {
			reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
			if reservation.Deposit == nil {
				l.PushNil()
				return 1
			}
			l.PushNumber(reservation.Deposit.InexactFloat64())
			return 1
		},
	}

	RegisterType(runtime.LuaState, "reservation", funcs, func(l *lua.State) int {
		reservation := lua.CheckUserData(l, 1, "reservation").(*domain.Reservation)
		l.PushString(fmt.Sprintf("reservation(%s, %s)", reservation.Kind, reservation.Status))
		return 1
	})
}

// RegisterCommissionType registers the `domain.Commission` type and its
// getters with the Lua state.
func RegisterCommissionType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// id returns the commission's UUID as a string.
		"id": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushString(commission.ID.String())
			return 1
		},
		// agent_id returns the UUID of the earning agent.
		"agent_id": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushString(commission.AgentID.String())
			return 1
		},
		// property_id returns the UUID of the property the deal closed on.
		"property_id": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushString(commission.PropertyID.String())
			return 1
		},
		// kind returns the transaction kind (sale or rental).
		"kind": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushString(commission.Kind)
			return 1
		},
		// base_amount returns the transaction amount in euros.
		"base_amount": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushNumber(commission.BaseAmount.InexactFloat64())
			return 1
		},
		// rate returns the commission percentage.
		"rate": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushNumber(commission.Rate.InexactFloat64())
			return 1
		},
		// amount returns the computed commission in euros.
		"amount": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushNumber(commission.Amount.InexactFloat64())
			return 1
		},
		// status returns the commission status.
		"status": func(l *lua.State) int {
			commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
			l.PushString(commission.Status)
			return 1
		},
	}

	RegisterType(runtime.LuaState, "commission", funcs, func(l *lua.State) int {
		commission := lua.CheckUserData(l, 1, "commission").(*domain.Commission)
		l.PushString(fmt.Sprintf("commission(%s EUR, %s)", commission.Amount.StringFixed(2), commission.Status))
		return 1
	})
}

// RegisterUserType registers the `domain.User` type and its getters with the
// Lua state.
func RegisterUserType(runtime *Runtime) {
	funcs := map[string]lua.Function{
		// id returns the user's UUID as a string.
		"id": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.ID.String())
			return 1
		},
		// email returns the user's login email.
		"email": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.Email)
			return 1
		},
		// username returns the user's display username.
		"username": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.Username)
			return 1
		},
		// full_name returns the user's display name.
		"full_name": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.FullName())
			return 1
		},
		// role returns the user's role.
		"role": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.Role)
			return 1
		},
		// phone returns the user's contact phone number.
		"phone": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushString(user.Phone)
			return 1
		},
		// active reports whether the account can authenticate.
		"active": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			l.PushBoolean(user.Active)
			return 1
		},
		// agency_id returns the UUID of the user's agency, or nil.
		"agency_id": func(l *lua.State) int {
			user := lua.CheckUserData(l, 1, "user").(*domain.User)
			return pushOptionalID(l, user.AgencyID)
		},
	}

	RegisterType(runtime.LuaState, "user", funcs, func(l *lua.State) int {
		user := lua.CheckUserData(l, 1, "user").(*domain.User)
		l.PushString(fmt.Sprintf("user(%s, %s)", user.Email, user.Role))
		return 1
	})
}
