// internal/handler/bot_handler.go
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
	"github.com/adboardhq/adboard-backend/internal/service"
	"github.com/adboardhq/adboard-backend/internal/session"
)

// BotHandler drives the Telegram dialogue front-end. Dialogue state lives in
// the session store; the engine services are the single source of truth for
// campaign and balance state.
type BotHandler struct {
	Bot          *tgbotapi.BotAPI
	Users        repository.UserRepositoryInterface
	Channels     repository.ChannelRepositoryInterface
	Campaigns    *service.CampaignService
	Verification *service.VerificationService
	Ledger       *service.LedgerService
	Sessions     *session.Store
}

func (h *BotHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	username := message.From.UserName
	if username == "" {
		username = message.From.FirstName
	}

	user, err := h.Users.GetOrCreate(message.From.ID, username, model.RoleAdvertiser)
	if err != nil {
		logrus.Errorf("failed to register user: %v", err)
		h.reply(message.Chat.ID, "Something went wrong, please try again.")
		return
	}

	if message.IsCommand() {
		// Commands reset any dialogue in progress.
		_ = h.Sessions.Clear(ctx, message.From.ID)

		switch message.Command() {
		case "start":
			h.handleStart(message)
		case "help":
			h.handleHelp(message)
		case "role":
			h.handleRole(ctx, message)
		case "newcampaign":
			h.handleNewCampaign(ctx, message, user)
		case "mycampaigns":
			h.handleMyCampaigns(message, user)
		case "offers":
			h.handleOffers(message, user)
		case "addchannel":
			h.handleAddChannel(ctx, message, user)
		case "balance":
			h.handleBalance(message, user)
		case "topup":
			h.handleTopup(ctx, message)
		case "cancel":
			h.reply(message.Chat.ID, "Action cancelled.")
		}
		return
	}

	state, err := h.Sessions.Get(ctx, message.From.ID)
	if err != nil {
		logrus.Errorf("failed to load session: %v", err)
		return
	}
	if state.Step != session.StepNone {
		h.handleStateInput(ctx, message, state, user)
	}
}

func (h *BotHandler) handleStart(message *tgbotapi.Message) {
	text := `👋 Welcome to the ad marketplace!

📣 Advertisers: create a campaign, fund it from your balance, and verified channels will compete to place your ad.
📺 Channel owners: register your channel, pass verification, and accept offers to earn.

📋 Commands:
/role - Choose advertiser or channel owner
/newcampaign - Create an ad campaign
/mycampaigns - Your campaigns
/offers - Open offers for your channel
/addchannel - Register your channel
/balance - Your balance
/topup - Add funds
/help - Help`
	h.reply(message.Chat.ID, text)
}

func (h *BotHandler) handleHelp(message *tgbotapi.Message) {
	text := `📖 How it works

1. An advertiser creates and funds a campaign. The budget is held in escrow.
2. Verified channel owners see the offer and the first to accept wins it.
3. The bot posts the ad to the channel and checks it stays up for the agreed window.
4. If it does, the channel owner gets paid. If not, the advertiser is refunded.

/cancel aborts any dialogue in progress.`
	h.reply(message.Chat.ID, text)
}

func (h *BotHandler) handleRole(ctx context.Context, message *tgbotapi.Message) {
	if err := h.Sessions.Set(ctx, message.From.ID, &session.State{Step: session.StepAwaitingRole, Data: map[string]string{}}); err != nil {
		logrus.Errorf("failed to save session: %v", err)
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📣 Advertiser", "role_advertiser"),
			tgbotapi.NewInlineKeyboardButtonData("📺 Channel owner", "role_channel_owner"),
			tgbotapi.NewInlineKeyboardButtonData("Both", "role_both"),
		),
	)
	msg := tgbotapi.NewMessage(message.Chat.ID, "Choose your role:")
	msg.ReplyMarkup = keyboard
	_, _ = h.Bot.Send(msg)
}

func (h *BotHandler) handleNewCampaign(ctx context.Context, message *tgbotapi.Message, user *model.User) {
	if !user.CanAdvertise() {
		h.reply(message.Chat.ID, "Your role does not allow creating campaigns. Use /role to change it.")
		return
	}
	if err := h.Sessions.Set(ctx, message.From.ID, &session.State{Step: session.StepAwaitingAdText, Data: map[string]string{}}); err != nil {
		logrus.Errorf("failed to save session: %v", err)
		return
	}
	h.reply(message.Chat.ID, "📝 Send the ad text (10 to 1000 characters, at most 2 links):")
}

func (h *BotHandler) handleStateInput(ctx context.Context, message *tgbotapi.Message, state *session.State, user *model.User) {
	switch state.Step {
	case session.StepAwaitingAdText:
		state.Data["ad_text"] = message.Text
		state.Step = session.StepAwaitingBudget
		if err := h.Sessions.Set(ctx, message.From.ID, state); err != nil {
			logrus.Errorf("failed to save session: %v", err)
			return
		}
		h.reply(message.Chat.ID, "💰 Enter the budget in stars:")

	case session.StepAwaitingBudget:
		budget, err := strconv.ParseInt(message.Text, 10, 64)
		if err != nil || budget <= 0 {
			h.reply(message.Chat.ID, "❌ Enter a positive number:")
			return
		}
		state.Data["budget"] = strconv.FormatInt(budget, 10)
		state.Step = session.StepAwaitingDuration
		if err := h.Sessions.Set(ctx, message.From.ID, state); err != nil {
			logrus.Errorf("failed to save session: %v", err)
			return
		}
		h.reply(message.Chat.ID, "⏱ How many hours must the ad stay up? (e.g. 24):")

	case session.StepAwaitingDuration:
		duration, err := strconv.Atoi(message.Text)
		if err != nil || duration <= 0 {
			h.reply(message.Chat.ID, "❌ Enter a positive number of hours:")
			return
		}
		state.Data["duration"] = strconv.Itoa(duration)
		state.Step = session.StepAwaitingConfirmation
		if err := h.Sessions.Set(ctx, message.From.ID, state); err != nil {
			logrus.Errorf("failed to save session: %v", err)
			return
		}

		text := fmt.Sprintf(`Review your campaign:

📝 %s
💰 Budget: %s stars
⏱ Duration: %d hours

Create and fund it now?`, state.Data["ad_text"], state.Data["budget"], duration)
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Create and fund", "campaign_confirm"),
				tgbotapi.NewInlineKeyboardButtonData("❌ Discard", "campaign_discard"),
			),
		)
		msg := tgbotapi.NewMessage(message.Chat.ID, text)
		msg.ReplyMarkup = keyboard
		_, _ = h.Bot.Send(msg)

	case session.StepAwaitingChannelInfo:
		parts := strings.SplitN(strings.TrimSpace(message.Text), " ", 2)
		channelID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			h.reply(message.Chat.ID, "❌ Send the channel id and name, e.g.: -1001234567890 My Channel")
			return
		}
		name := ""
		if len(parts) > 1 {
			name = parts[1]
		}

		channel, err := h.Verification.RegisterChannel(user.ID, channelID, name)
		if err != nil {
			h.reply(message.Chat.ID, fmt.Sprintf("❌ %v", err))
			_ = h.Sessions.Clear(ctx, message.From.ID)
			return
		}
		_ = h.Sessions.Clear(ctx, message.From.ID)

		result, err := h.Verification.Verify(ctx, channel.ID)
		if err != nil {
			h.reply(message.Chat.ID, "Channel registered; verification will run shortly.")
			return
		}
		if result.State == model.ChannelVerified {
			h.reply(message.Chat.ID, fmt.Sprintf("✅ Channel %q verified with %d subscribers. Use /offers to see open campaigns.", channel.Name, result.Subscribers))
		} else {
			h.reply(message.Chat.ID, fmt.Sprintf("Channel registered but not yet verified: %s. Make the bot an administrator and try again.", result.Reason))
		}

	case session.StepAwaitingTopupAmount:
		amount, err := strconv.ParseInt(message.Text, 10, 64)
		if err != nil || amount <= 0 {
			h.reply(message.Chat.ID, "❌ Enter a positive amount:")
			return
		}
		// One deposit per message; the message id makes retries safe.
		reference := fmt.Sprintf("topup-%d-%d", message.From.ID, message.MessageID)
		if _, err := h.Ledger.TopUp(user.ID, amount, reference); err != nil {
			h.reply(message.Chat.ID, fmt.Sprintf("❌ Top-up failed: %v", err))
			return
		}
		_ = h.Sessions.Clear(ctx, message.From.ID)

		balance, _ := h.Ledger.Balance(user.ID)
		h.reply(message.Chat.ID, fmt.Sprintf("✅ Deposited %d stars. Balance: %d", amount, balance))
	}
}

func (h *BotHandler) handleMyCampaigns(message *tgbotapi.Message, user *model.User) {
	campaigns, err := h.Campaigns.ListByAdvertiser(user.ID)
	if err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ %v", err))
		return
	}
	if len(campaigns) == 0 {
		h.reply(message.Chat.ID, "You have no campaigns yet. Create one with /newcampaign")
		return
	}

	text := "📋 Your campaigns:\n\n"
	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, c := range campaigns {
		text += fmt.Sprintf("%d. #%d [%s] 💰 %d stars, %dh\n", i+1, c.ID, c.Status, c.Budget, c.DurationHours)
		if c.CanBeCancelled() {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf("❌ Cancel #%d", c.ID),
					fmt.Sprintf("cancel_%d", c.ID),
				),
			))
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, _ = h.Bot.Send(msg)
}

func (h *BotHandler) handleOffers(message *tgbotapi.Message, user *model.User) {
	channels, err := h.Channels.ListByOwner(user.ID)
	if err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ %v", err))
		return
	}

	var verified []*model.Channel
	for _, ch := range channels {
		if ch.ReadyForAds() {
			verified = append(verified, ch)
		}
	}
	if len(verified) == 0 {
		h.reply(message.Chat.ID, "You have no verified channels. Register one with /addchannel")
		return
	}

	shown := 0
	for _, ch := range verified {
		offers, err := h.Campaigns.ListOffers(ch.ID)
		if err != nil {
			continue
		}
		for _, offer := range offers {
			text := fmt.Sprintf(`📣 Offer #%d for %q

%s

💰 %d stars for %d hours`, offer.ID, ch.Name, offer.AdText, offer.Budget, offer.DurationHours)
			keyboard := tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🤝 Accept", fmt.Sprintf("accept_%d_%d", offer.ID, ch.ID)),
				),
			)
			msg := tgbotapi.NewMessage(message.Chat.ID, text)
			msg.ReplyMarkup = keyboard
			_, _ = h.Bot.Send(msg)
			shown++
		}
	}
	if shown == 0 {
		h.reply(message.Chat.ID, "No open offers for your channels right now.")
	}
}

func (h *BotHandler) handleAddChannel(ctx context.Context, message *tgbotapi.Message, user *model.User) {
	if !user.CanOwnChannels() {
		h.reply(message.Chat.ID, "Your role does not allow registering channels. Use /role to change it.")
		return
	}
	if err := h.Sessions.Set(ctx, message.From.ID, &session.State{Step: session.StepAwaitingChannelInfo, Data: map[string]string{}}); err != nil {
		logrus.Errorf("failed to save session: %v", err)
		return
	}
	h.reply(message.Chat.ID, "📺 Add this bot as an administrator of your channel, then send the channel id and name, e.g.:\n-1001234567890 My Channel")
}

func (h *BotHandler) handleBalance(message *tgbotapi.Message, user *model.User) {
	balance, err := h.Ledger.Balance(user.ID)
	if err != nil {
		h.reply(message.Chat.ID, fmt.Sprintf("❌ %v", err))
		return
	}
	h.reply(message.Chat.ID, fmt.Sprintf("💰 Your balance: %d stars", balance))
}

func (h *BotHandler) handleTopup(ctx context.Context, message *tgbotapi.Message) {
	if err := h.Sessions.Set(ctx, message.From.ID, &session.State{Step: session.StepAwaitingTopupAmount, Data: map[string]string{}}); err != nil {
		logrus.Errorf("failed to save session: %v", err)
		return
	}
	h.reply(message.Chat.ID, "💳 Enter the amount to deposit:")
}

func (h *BotHandler) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	parts := strings.Split(query.Data, "_")
	if len(parts) < 2 {
		return
	}

	username := query.From.UserName
	if username == "" {
		username = query.From.FirstName
	}
	user, err := h.Users.GetOrCreate(query.From.ID, username, model.RoleAdvertiser)
	if err != nil {
		logrus.Errorf("failed to register user: %v", err)
		return
	}

	switch parts[0] {
	case "role":
		role := strings.Join(parts[1:], "_")
		switch role {
		case model.RoleAdvertiser, model.RoleChannelOwner, model.RoleBoth:
		default:
			return
		}
		if err := h.Users.UpdateRole(user.ID, role); err != nil {
			h.answerCallback(query, fmt.Sprintf("❌ %v", err))
			return
		}
		_ = h.Sessions.Clear(ctx, query.From.ID)
		h.answerCallback(query, "✅ Role updated")
		h.reply(query.Message.Chat.ID, fmt.Sprintf("Your role is now %s.", role))

	case "campaign":
		state, err := h.Sessions.Get(ctx, query.From.ID)
		if err != nil || state.Step != session.StepAwaitingConfirmation {
			h.answerCallback(query, "Nothing to confirm")
			return
		}
		_ = h.Sessions.Clear(ctx, query.From.ID)

		if parts[1] == "discard" {
			h.answerCallback(query, "Discarded")
			return
		}

		budget, _ := strconv.ParseInt(state.Data["budget"], 10, 64)
		duration, _ := strconv.Atoi(state.Data["duration"])

		campaign, err := h.Campaigns.CreateCampaign(user.ID, state.Data["ad_text"], budget, duration)
		if err != nil {
			h.answerCallback(query, "❌ Failed")
			h.reply(query.Message.Chat.ID, fmt.Sprintf("❌ %v", err))
			return
		}

		if _, err := h.Campaigns.Fund(campaign.ID, user.ID); err != nil {
			h.answerCallback(query, "")
			if appErrors.IsInsufficientFunds(err) {
				h.reply(query.Message.Chat.ID, fmt.Sprintf("Campaign #%d created, but your balance cannot cover the %d star budget. Use /topup and fund it from /mycampaigns.", campaign.ID, campaign.Budget))
			} else {
				h.reply(query.Message.Chat.ID, fmt.Sprintf("Campaign #%d created, but funding failed: %v", campaign.ID, err))
			}
			return
		}

		h.answerCallback(query, "✅ Created")
		h.reply(query.Message.Chat.ID, fmt.Sprintf("✅ Campaign #%d is funded and offered to channels.", campaign.ID))

	case "cancel":
		campaignID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return
		}
		if _, err := h.Campaigns.Cancel(campaignID, user.ID); err != nil {
			h.answerCallback(query, fmt.Sprintf("❌ %v", err))
			return
		}
		h.answerCallback(query, "✅ Cancelled and refunded")

	case "accept":
		if len(parts) < 3 {
			return
		}
		campaignID, _ := strconv.ParseInt(parts[1], 10, 64)
		channelID, _ := strconv.ParseInt(parts[2], 10, 64)

		if _, err := h.Campaigns.Accept(campaignID, channelID, user.ID); err != nil {
			switch {
			case appErrors.IsAlreadyClaimed(err):
				h.answerCallback(query, "Too late, another channel took it")
			case appErrors.IsExpired(err):
				h.answerCallback(query, "This offer has expired")
			default:
				h.answerCallback(query, fmt.Sprintf("❌ %v", err))
			}
			return
		}
		h.answerCallback(query, "🤝 Offer is yours")
		h.reply(query.Message.Chat.ID, fmt.Sprintf("You accepted campaign #%d. The ad will be posted shortly.", campaignID))
	}
}

func (h *BotHandler) answerCallback(query *tgbotapi.CallbackQuery, text string) {
	callback := tgbotapi.NewCallback(query.ID, text)
	_, _ = h.Bot.Request(callback)
}

func (h *BotHandler) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, _ = h.Bot.Send(msg)
}
