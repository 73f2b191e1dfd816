package catalog

// Default returns the built-in embroidery shop catalog.
func Default() *Catalog {
	c, err := New(defaultMenus(), defaultTemplates())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultMenus() []Menu {
	return []Menu{
		{
			ID:    RootMenuID,
			Title: "Добро пожаловать в наш магазин вышивки! 🧵\nВыберите интересующую вас категорию:",
			Kind:  KindList,
			Options: []Option{
				{ID: "cat_kits", Title: "Наборы для вышивки", Description: "Готовые комплекты для творчества", NextMenuID: "menu_kits"},
				{ID: "cat_threads", Title: "Нитки для вышивки", Description: "Мулине различных производителей", NextMenuID: "menu_threads"},
				{ID: "contact_manager", Title: "📞 Связаться с менеджером", Action: ActionContactManager},
			},
		},
		{
			ID:    "menu_kits",
			Title: "Наборы для вышивки. Выберите товар:",
			Kind:  KindList,
			Options: []Option{
				{ID: "kit_sf", Title: `Набор "Весенние цветы"`, Description: "Яркий и красивый набор.", Price: 1500, Action: ActionSelectItem},
				{ID: "kit_wl", Title: `Набор "Зимний пейзаж"`, Description: "Успокаивающая зимняя тематика.", Price: 1800, Action: ActionSelectItem},
				{ID: "kit_mg", Title: `Набор "Магический лес"`, Description: "Фэнтезийный сюжет.", Price: 1650, Action: ActionSelectItem},
				{ID: "back_to_main_kits", Title: "⬅️ Назад в главное меню", NextMenuID: RootMenuID},
			},
		},
		{
			ID:    "menu_threads",
			Title: "Нитки для вышивки. Выберите товар:",
			Kind:  KindList,
			Options: []Option{
				{ID: "thread_dmc_24", Title: "Набор мулине DMC (24 цвета)", Description: "Высококачественные хлопковые нитки.", Price: 900, Action: ActionSelectItem},
				{ID: "thread_anchor_mix", Title: "Микс мулине Anchor (12 шт)", Description: "Яркие цвета для ваших проектов.", Price: 450, Action: ActionSelectItem},
				{ID: "back_to_main_threads", Title: "⬅️ Назад в главное меню", NextMenuID: RootMenuID},
			},
		},
	}
}

func defaultTemplates() map[string]string {
	return map[string]string{
		TemplateContactManager: "Спасибо за ваше обращение! Менеджер скоро свяжется с вами по WhatsApp.",
		TemplateItemSelected:   "✅ \"{item_name}\" добавлен(о) в вашу корзину (Цена: {item_price} руб).\n\nВыберите что-нибудь еще или вернитесь в главное меню.",
		TemplateFallback:       "Извините, я не понял ваш запрос. Пожалуйста, используйте кнопки меню для навигации или введите \"меню\", чтобы начать сначала.",
		TemplateCartView:       "Ваша корзина:\n{cart_items}\n\nОбщая сумма: {total_price} руб.",
	}
}
